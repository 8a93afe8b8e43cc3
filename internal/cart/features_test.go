package cart

import (
	"context"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
)

type reconcileTestContext struct {
	state   *State
	storage *MemoryStorage
	nav     *recordingNav
	outcome Outcome
}

func (c *reconcileTestContext) reset() {
	c.state = NewState(New(nil))
	c.storage = NewMemoryStorage()
	c.nav = &recordingNav{}
	c.outcome = OutcomeNone
}

func (c *reconcileTestContext) anEmptyCart() error {
	return c.state.Commit(context.Background(), New(nil))
}

func (c *reconcileTestContext) theCartHolds(id, condition, storage, color string, price float64, qty int) error {
	snap := c.state.Snapshot()
	snap.Items = append(snap.Items, Item{ID: id, Condition: condition, Storage: storage, Color: color, Price: price, Quantity: qty})
	return c.state.Commit(context.Background(), snap.Recalculate())
}

func (c *reconcileTestContext) aPendingItem(id, condition, storage, color string, price float64) error {
	c.storage.Set(PendingItemKey, fmt.Sprintf(`{"id":%q,"condition":%q,"storage":%q,"color":%q,"price":%v}`, id, condition, storage, color, price))
	return nil
}

func (c *reconcileTestContext) aCorruptPendingRecord() error {
	c.storage.Set(PendingItemKey, `{"id": 42,`)
	return nil
}

func (c *reconcileTestContext) theShopperSignsIn() error {
	r := &Reconciler{Cart: c.state, Storage: c.storage, Navigator: c.nav}
	c.outcome = r.OnSession(context.Background(), true)
	return nil
}

func (c *reconcileTestContext) theSessionEnds() error {
	r := &Reconciler{Cart: c.state, Storage: c.storage, Navigator: c.nav}
	c.outcome = r.OnSession(context.Background(), false)
	return nil
}

func (c *reconcileTestContext) theCartHasLines(n int) error {
	if got := len(c.state.Snapshot().Items); got != n {
		return fmt.Errorf("expected %d lines, got %d", n, got)
	}
	return nil
}

func (c *reconcileTestContext) modelHasQuantity(id string, qty int) error {
	for _, it := range c.state.Snapshot().Items {
		if it.ID == id {
			if it.Quantity != qty {
				return fmt.Errorf("expected quantity %d for %s, got %d", qty, id, it.Quantity)
			}
			return nil
		}
	}
	return fmt.Errorf("model %s not in cart", id)
}

func (c *reconcileTestContext) theCartTotalsAre(items int, subtotal float64) error {
	snap := c.state.Snapshot()
	if snap.TotalItems != items || snap.SubTotalPrice != subtotal {
		return fmt.Errorf("expected totals %d/%v, got %d/%v", items, subtotal, snap.TotalItems, snap.SubTotalPrice)
	}
	return nil
}

func (c *reconcileTestContext) noPendingItemRemains() error {
	if _, ok := c.storage.Get(PendingItemKey); ok {
		return fmt.Errorf("pending item still staged")
	}
	return nil
}

func (c *reconcileTestContext) thePendingItemIsStillStaged() error {
	if _, ok := c.storage.Get(PendingItemKey); !ok {
		return fmt.Errorf("pending item was consumed")
	}
	return nil
}

func (c *reconcileTestContext) theShopperIsOn(path string) error {
	if len(c.nav.paths) == 0 || c.nav.paths[len(c.nav.paths)-1] != path {
		return fmt.Errorf("expected navigation to %s, got %v", path, c.nav.paths)
	}
	return nil
}

func (c *reconcileTestContext) theShopperWasNotRedirected() error {
	if len(c.nav.paths) != 0 {
		return fmt.Errorf("unexpected navigation %v", c.nav.paths)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &reconcileTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^an empty cart$`, tc.anEmptyCart)
	ctx.Step(`^the cart holds model "([^"]*)" in "([^"]*)" "([^"]*)" "([^"]*)" at (\d+(?:\.\d+)?) with quantity (\d+)$`, tc.theCartHolds)
	ctx.Step(`^a pending item for model "([^"]*)" in "([^"]*)" "([^"]*)" "([^"]*)" at (\d+(?:\.\d+)?)$`, tc.aPendingItem)
	ctx.Step(`^a corrupt pending record$`, tc.aCorruptPendingRecord)

	ctx.Step(`^the shopper signs in$`, tc.theShopperSignsIn)
	ctx.Step(`^the session ends$`, tc.theSessionEnds)

	ctx.Step(`^the cart has (\d+) lines$`, tc.theCartHasLines)
	ctx.Step(`^model "([^"]*)" has quantity (\d+)$`, tc.modelHasQuantity)
	ctx.Step(`^the cart totals are (\d+) items and (\d+(?:\.\d+)?)$`, tc.theCartTotalsAre)
	ctx.Step(`^no pending item remains$`, tc.noPendingItemRemains)
	ctx.Step(`^the pending item is still staged$`, tc.thePendingItemIsStillStaged)
	ctx.Step(`^the shopper is on "([^"]*)"$`, tc.theShopperIsOn)
	ctx.Step(`^the shopper was not redirected$`, tc.theShopperWasNotRedirected)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/reconcile.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
