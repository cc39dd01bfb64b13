package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/recipebot/recipeapp/internal/apiclient"
	"github.com/recipebot/recipeapp/internal/draft"
	"github.com/recipebot/recipeapp/internal/recipes"
)

var editInitData string

var editCmd = &cobra.Command{
	Use:   "edit <recipe-id>",
	Short: "Edit a recipe interactively with draft protection",
	Long: `Opens an interactive editor for one recipe against a running server.
Unsaved changes are kept in a tab-scoped and a durable local draft and,
when handing off to a sibling page, in the server-side draft. The menu
can simulate a page reset to show the form being restored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if editInitData != "" {
			cfg.InitData = editInitData
		}
		if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
			return fmt.Errorf("invalid recipe id %q", args[0])
		}

		client, err := apiclient.New(cfg.APIBaseURL, cfg.InitData, cfg.RequestTimeout())
		if err != nil {
			return err
		}

		database, _, err := openDatabase(cfg, "client.db")
		if err != nil {
			return err
		}
		defer database.Close()

		logger := newLogger()
		local := draft.NewLocalStore(cfg.DraftKeyPrefix,
			draft.NewMemoryTier("session", 0),
			draft.NewSQLTier(database),
		)
		local.SetLogger(logger)

		s := &editSession{client: client, form: draft.NewMemoryForm(), local: local}
		s.open = func(id string) (*draft.Reconciler, error) {
			return draft.New(id, s.form, local, apiclient.Authority{Client: client}, draft.Options{
				Reference:   s.loadCategories,
				Remote:      draft.NewRemote(apiclient.DraftBackend{Client: client}, logger),
				Host:        s,
				HandoffWait: cfg.HandoffWait(),
				Logger:      logger,
			})
		}
		if s.rec, err = s.open(args[0]); err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := s.rec.Load(ctx); err != nil {
			return fmt.Errorf("loading recipe: %w", err)
		}
		return s.run(ctx)
	},
}

// editSession is the terminal editing surface.
type editSession struct {
	client     *apiclient.Client
	form       *draft.MemoryForm
	local      *draft.LocalStore
	rec        *draft.Reconciler
	open       func(id string) (*draft.Reconciler, error)
	categories []recipes.Category
}

func (s *editSession) loadCategories(ctx context.Context) error {
	cats, err := s.client.ListCategories(ctx)
	if err != nil {
		return err
	}
	s.categories = cats
	return nil
}

func (s *editSession) NotifyChanged(entityID string) {
	fmt.Fprintf(os.Stderr, "recipe %s changed\n", entityID)
}

const (
	actionTitle       = "Edit title"
	actionDescription = "Edit description"
	actionCategory    = "Change category"
	actionSave        = "Save"
	actionHandoff     = "Edit ingredients (hand-off to the ingredients page)"
	actionDiscard     = "Discard draft"
	actionReset       = "Simulate page reset and restore"
	actionDouble      = "Simulate duplicate restore events"
	actionHistory     = "Show edit history"
	actionQuit        = "Quit (keep draft)"
)

func (s *editSession) run(ctx context.Context) error {
	items := []string{actionTitle, actionDescription, actionCategory, actionSave,
		actionHandoff, actionDiscard, actionReset, actionDouble, actionHistory, actionQuit}
	for {
		s.print()
		menu := promptui.Select{Label: "Action", Items: items, Size: len(items)}
		_, action, err := menu.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				s.rec.Hide()
				return nil
			}
			return err
		}

		switch action {
		case actionTitle:
			s.editText(draft.FieldTitle, "Title")
		case actionDescription:
			s.editText(draft.FieldDescription, "Description")
		case actionCategory:
			s.pickCategory()
		case actionSave:
			s.save(ctx)
		case actionHandoff:
			s.handOff(ctx)
		case actionDiscard:
			s.discard(ctx)
		case actionReset:
			s.form.Reset()
			fmt.Println("Form was reset by the host.")
			report(s.rec.Restore(ctx))
		case actionDouble:
			s.form.Reset()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return s.rec.Restore(gctx) })
			g.Go(func() error { return s.rec.Restore(gctx) })
			report(g.Wait())
		case actionHistory:
			s.history(ctx)
		case actionQuit:
			s.rec.Hide()
			fmt.Println("Draft kept. Run edit again to continue.")
			return nil
		}
	}
}

func (s *editSession) print() {
	fmt.Printf("\nRecipe %s [%s]\n", s.rec.EntityID(), s.rec.State())
	fmt.Printf("  Title:       %s\n", s.form.Value(draft.FieldTitle))
	fmt.Printf("  Category:    %s\n", s.categoryName(s.form.Value(draft.FieldCategoryID)))
	fmt.Printf("  Description: %s\n", s.form.Value(draft.FieldDescription))
}

func (s *editSession) categoryName(id string) string {
	for _, c := range s.categories {
		if strconv.FormatInt(c.ID, 10) == id {
			return c.Name
		}
	}
	if id == "" {
		return "-"
	}
	return "#" + id
}

func (s *editSession) editText(field, label string) {
	p := promptui.Prompt{Label: label, Default: s.form.Value(field), AllowEdit: true}
	v, err := p.Run()
	if err != nil {
		return
	}
	s.form.SetValue(field, v)
	s.rec.Edit(field)
}

func (s *editSession) pickCategory() {
	if len(s.categories) == 0 {
		fmt.Println("No categories available.")
		return
	}
	names := make([]string, len(s.categories))
	for i, c := range s.categories {
		names[i] = c.Name
	}
	sel := promptui.Select{Label: "Category", Items: names}
	i, _, err := sel.Run()
	if err != nil {
		return
	}
	s.form.SetValue(draft.FieldCategoryID, strconv.FormatInt(s.categories[i].ID, 10))
	s.rec.Edit(draft.FieldCategoryID)
}

func (s *editSession) save(ctx context.Context) {
	before := s.rec.EntityID()
	saved, err := s.rec.Save(ctx)
	if err != nil {
		var ve *draft.ValidationError
		var apiErr *apiclient.APIError
		switch {
		case errors.As(err, &ve):
			fmt.Printf("Not saved: %s\n", ve.Message)
		case errors.As(err, &apiErr):
			fmt.Printf("Save failed (%d): %s. Your draft is kept.\n", apiErr.Status, apiErr.Message)
		default:
			fmt.Printf("Save failed: %v. Your draft is kept.\n", err)
		}
		return
	}
	if saved.EntityID != before {
		fmt.Printf("Saved as your own copy, recipe %s.\n", saved.EntityID)
		return
	}
	fmt.Println("Saved.")
}

func (s *editSession) handOff(ctx context.Context) {
	var movedTo string
	err := s.rec.HandOff(ctx, func() error {
		fmt.Println("Left for the ingredients page; this surface is discarded.")
		s.form.Reset()
		var err error
		movedTo, err = s.ingredientsPage(ctx)
		return err
	})
	if err != nil {
		fmt.Printf("Ingredients not saved: %v\n", err)
	}
	fmt.Println("Returned to the recipe page.")
	if movedTo != "" {
		s.follow(ctx, movedTo)
		return
	}
	report(s.rec.Restore(ctx))
}

// ingredientsPage is the sibling surface: it edits the ingredient list
// and saves it straight away. It returns the new recipe id when the save
// moved the user to a private copy.
func (s *editSession) ingredientsPage(ctx context.Context) (string, error) {
	id, err := strconv.ParseInt(s.rec.EntityID(), 10, 64)
	if err != nil {
		return "", err
	}
	r, err := s.client.GetRecipe(ctx, id)
	if err != nil {
		return "", err
	}
	current := strings.Join(r.Ingredients, "; ")
	p := promptui.Prompt{Label: "Ingredients (separate with ;)", Default: current, AllowEdit: true}
	v, err := p.Run()
	if err != nil || strings.TrimSpace(v) == strings.TrimSpace(current) {
		return "", nil
	}

	text := strings.ReplaceAll(v, ";", "\n")
	saved, err := s.client.PatchRecipe(ctx, id, recipes.Patch{IngredientsText: &text})
	if err != nil {
		return "", err
	}
	fmt.Printf("Saved %d ingredient(s).\n", len(saved.Ingredients))
	if saved.ID != id {
		return strconv.FormatInt(saved.ID, 10), nil
	}
	return "", nil
}

// follow moves the session to a forked copy of the recipe, carrying the
// unsaved draft over.
func (s *editSession) follow(ctx context.Context, id string) {
	old := s.rec.EntityID()
	if d, ok := s.local.Read(old); ok {
		s.local.Write(id, d.Fields)
	}
	s.local.Clear(old)

	rec, err := s.open(id)
	if err != nil {
		fmt.Printf("Could not open recipe %s: %v\n", id, err)
		return
	}
	s.rec = rec
	fmt.Printf("Now editing your own copy, recipe %s.\n", id)
	if err := s.rec.Load(ctx); err != nil {
		fmt.Printf("Could not load recipe %s: %v\n", id, err)
	}
}

// discard drops the local and server-side drafts and shows the saved
// recipe again.
func (s *editSession) discard(ctx context.Context) {
	id := s.rec.EntityID()
	s.local.Clear(id)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		if err := s.client.DeleteDraft(ctx, n); err != nil {
			fmt.Printf("Server draft not removed: %v\n", err)
		}
	}
	s.form.Reset()
	if err := s.rec.Load(ctx); err != nil {
		fmt.Printf("Could not reload the recipe: %v\n", err)
		return
	}
	fmt.Println("Draft discarded.")
}

func (s *editSession) history(ctx context.Context) {
	entries, err := s.client.History(ctx, 10)
	if err != nil {
		fmt.Printf("History unavailable: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No saved edits yet.")
		return
	}
	for _, e := range entries {
		fmt.Printf("  %s  recipe %d  %s (%s)\n",
			e.Timestamp.Local().Format("2006-01-02 15:04"), e.RecipeID, e.Summary, strings.Join(e.ChangedFields, ", "))
	}
}

func report(err error) {
	if err != nil {
		fmt.Printf("Could not restore the form: %v\n", err)
	}
}

func init() {
	editCmd.Flags().StringVar(&editInitData, "init-data", "", "Telegram initData identifying the user (overrides config)")
	rootCmd.AddCommand(editCmd)
}
