package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avasile/komando/internal/komando/executor"
	"github.com/avasile/komando/internal/komando/slot"
)

func nowUTC() time.Time { return time.Now().UTC() }

// registerDemoExecutors binds the demo intents to in-memory executors. A real
// host registers executors that talk to its business system instead.
func registerDemoExecutors(execs *executor.Registry) {
	prices := map[string]float64{
		"Chocolate":      2.50,
		"Chocolate Cake": 12.00,
		"Green Tea":      4.25,
	}
	stock := &stockBook{levels: map[string]float64{
		"Chocolate":      120,
		"Chocolate Cake": 8,
		"Green Tea":      40,
	}}
	execs.Register("sale_create", &saleExecutor{prices: prices, stock: stock})
	execs.Register("inventory_adjust", &inventoryExecutor{stock: stock})
}

// stockBook is the demo inventory, shared by both executors.
type stockBook struct {
	mu     sync.Mutex
	levels map[string]float64
}

func (b *stockBook) level(product string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels[product]
}

func (b *stockBook) adjust(product string, delta float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.levels[product] += delta
	return b.levels[product]
}

// saleExecutor creates demo sale orders against the in-memory price list.
type saleExecutor struct {
	prices map[string]float64
	stock  *stockBook

	mu     sync.Mutex
	serial int
}

func (e *saleExecutor) ValidateSlots(_ context.Context, values map[string]slot.Value) error {
	var errs []error
	qty, ok := values["quantity"].AsNumber()
	if ok && qty <= 0 {
		errs = append(errs, &executor.ValidationError{
			Slot: "quantity", Message: "The quantity must be positive. How many units?",
		})
	}
	if product, ok := values["product"].AsEntity(); ok {
		if _, priced := e.prices[product.DisplayName]; !priced {
			errs = append(errs, &executor.ValidationError{
				Slot: "product", Message: fmt.Sprintf("%s has no list price. Which product?", product.DisplayName),
			})
		} else if qty > e.stock.level(product.DisplayName) {
			errs = append(errs, &executor.ValidationError{
				Slot:    "quantity",
				Message: fmt.Sprintf("Only %.0f units of %s in stock. How many?", e.stock.level(product.DisplayName), product.DisplayName),
			})
		}
	}
	return errors.Join(errs...)
}

func (e *saleExecutor) DryRun(_ context.Context, values map[string]slot.Value) (executor.Plan, error) {
	partner, _ := values["partner"].AsEntity()
	product, _ := values["product"].AsEntity()
	qty, _ := values["quantity"].AsNumber()

	price := e.prices[product.DisplayName]
	total := slot.Money{Amount: qty * price, Currency: "USD"}
	return executor.Plan{
		Description: fmt.Sprintf("Create sale order for %s", partner.DisplayName),
		Lines: []executor.PlanLine{
			{Label: "Product", Value: fmt.Sprintf("%s x %.0f @ %.2f", product.DisplayName, qty, price)},
		},
		Total: &total,
	}, nil
}

func (e *saleExecutor) Execute(_ context.Context, values map[string]slot.Value) (executor.Result, error) {
	product, _ := values["product"].AsEntity()
	qty, _ := values["quantity"].AsNumber()
	e.stock.adjust(product.DisplayName, -qty)

	e.mu.Lock()
	e.serial++
	ref := fmt.Sprintf("SO-%04d", e.serial)
	e.mu.Unlock()

	return executor.Result{
		Message:        fmt.Sprintf("Sale order %s created.", ref),
		CreatedRecords: []string{ref},
	}, nil
}

// inventoryExecutor sets demo stock levels.
type inventoryExecutor struct {
	stock *stockBook
}

func (e *inventoryExecutor) ValidateSlots(_ context.Context, values map[string]slot.Value) error {
	if qty, ok := values["quantity"].AsNumber(); ok && qty < 0 {
		return &executor.ValidationError{
			Slot: "quantity", Message: "Stock cannot be negative. What should the new level be?",
		}
	}
	return nil
}

func (e *inventoryExecutor) DryRun(_ context.Context, values map[string]slot.Value) (executor.Plan, error) {
	product, _ := values["product"].AsEntity()
	qty, _ := values["quantity"].AsNumber()
	current := e.stock.level(product.DisplayName)
	return executor.Plan{
		Description: fmt.Sprintf("Adjust stock of %s", product.DisplayName),
		Lines: []executor.PlanLine{
			{Label: "Current level", Value: fmt.Sprintf("%.0f", current)},
			{Label: "New level", Value: fmt.Sprintf("%.0f", qty)},
		},
		RiskNotes: []string{"stock adjustment overrides the counted level"},
	}, nil
}

func (e *inventoryExecutor) Execute(_ context.Context, values map[string]slot.Value) (executor.Result, error) {
	product, _ := values["product"].AsEntity()
	qty, _ := values["quantity"].AsNumber()
	current := e.stock.level(product.DisplayName)
	e.stock.adjust(product.DisplayName, qty-current)
	return executor.Result{
		Message:        fmt.Sprintf("Stock of %s set to %.0f.", product.DisplayName, qty),
		UpdatedRecords: []string{product.DisplayName},
	}, nil
}
