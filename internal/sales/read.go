package sales

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/gemtrade-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gemtrade-backend/pkg/errors"
	"github.com/angelmondragon/gemtrade-backend/pkg/pagination"
)

func (s *service) GetSale(ctx context.Context, saleID uuid.UUID) (*SaleView, error) {
	sale, err := s.repo.FindSale(ctx, saleID)
	if err != nil {
		return nil, saleLookupFailed(saleID, err)
	}
	views, err := s.buildViews(ctx, []models.Sale{*sale})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *service) ListSales(ctx context.Context, input ListSalesInput) (*SaleList, error) {
	rows, err := s.repo.ListSales(ctx, input)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sales")
	}
	page, next := pagination.Page(rows, input.Pagination.Limit, func(sale models.Sale) pagination.Cursor {
		return pagination.Cursor{At: sale.SaleDate, ID: sale.ID}
	})
	views, err := s.buildViews(ctx, page)
	if err != nil {
		return nil, err
	}
	return &SaleList{Items: views, NextCursor: next}, nil
}

// buildViews loads the clients and stones the sales reference in two batched
// reads and assembles one view per sale.
func (s *service) buildViews(ctx context.Context, sales []models.Sale) ([]SaleView, error) {
	clientIDs := make([]uuid.UUID, 0, len(sales))
	itemIDs := make([]uuid.UUID, 0)
	seenClient := map[uuid.UUID]struct{}{}
	seenItem := map[uuid.UUID]struct{}{}
	for _, sale := range sales {
		if _, ok := seenClient[sale.ClientID]; !ok {
			seenClient[sale.ClientID] = struct{}{}
			clientIDs = append(clientIDs, sale.ClientID)
		}
		for _, item := range sale.Items {
			if _, ok := seenItem[item.InventoryItemID]; !ok {
				seenItem[item.InventoryItemID] = struct{}{}
				itemIDs = append(itemIDs, item.InventoryItemID)
			}
		}
	}

	clients, err := s.clients.FindByIDs(ctx, clientIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load clients")
	}
	clientByID := make(map[uuid.UUID]*models.Client, len(clients))
	for i := range clients {
		clientByID[clients[i].ID] = &clients[i]
	}

	stones, err := s.inventory.FindByIDs(ctx, itemIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory items")
	}
	stoneByID := make(map[uuid.UUID]models.InventoryItem, len(stones))
	for _, stone := range stones {
		stoneByID[stone.ID] = stone
	}

	views := make([]SaleView, 0, len(sales))
	for i := range sales {
		sale := &sales[i]
		view := BuildView(sale, sale.Items, clientByID[sale.ClientID], stoneByID)
		if !view.TotalsConsistent {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"sale_id":                 sale.ID.String(),
				"stored_total_with_tax":   sale.TotalWithTax.String(),
				"computed_total_with_tax": view.Totals.TotalWithTax.String(),
			}), "stored sale totals differ from recomputed totals")
		}
		views = append(views, view)
	}
	return views, nil
}
