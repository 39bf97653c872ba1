package shopping

import (
	"context"
	"log"

	"nutriplan/internal/database"
	"nutriplan/internal/mealplan"
	"nutriplan/internal/recipe"
)

// PlanReader loads a user's plan with its current version.
type PlanReader interface {
	Get(ctx context.Context, userID string, planID int64) (*mealplan.PlanView, error)
}

// Service builds and caches shopping lists per plan version.
type Service struct {
	db    database.DBTX
	plans PlanReader
}

func NewService(db database.DBTX, plans PlanReader) *Service {
	return &Service{db: db, plans: plans}
}

// ForPlan returns the list of the plan's current version. When refresh is
// set the list is rebuilt, which picks up in-place meal changes.
func (s *Service) ForPlan(ctx context.Context, userID string, planID int64, refresh bool) (*ShoppingList, error) {
	view, err := s.plans.Get(ctx, userID, planID)
	if err != nil {
		return nil, err
	}

	repo := NewRepository(s.db)
	if !refresh {
		existing, err := repo.GetByVersionID(ctx, view.Version.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	var ids []string
	for _, d := range view.Version.Days {
		for _, m := range d.Meals {
			if m.RecipeID != "" {
				ids = append(ids, m.RecipeID)
			}
		}
	}
	recipes, err := recipe.NewRepository(s.db).GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	list := &ShoppingList{
		UserID:    userID,
		VersionID: view.Version.ID,
		Items:     BuildItems(view.Version.Days, recipes),
	}
	if err := repo.Save(ctx, list); err != nil {
		return nil, err
	}
	log.Printf("Shopping list for plan %d version %d: %d items", planID, view.Version.Number, len(list.Items))
	return list, nil
}
