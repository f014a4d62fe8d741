package telemetry_test

import (
	"context"
	"fmt"

	"github.com/openfroyo/chainstage/pkg/engine"
	"github.com/openfroyo/chainstage/pkg/telemetry"
)

// ExampleEventBus demonstrates filtered event fan-out.
func ExampleEventBus() {
	bus := telemetry.NewEventBus()
	bus.Subscribe("failures", telemetry.SubscriberFunc(func(_ context.Context, ev *engine.Event) error {
		fmt.Println(ev.Type, ev.Step)
		return nil
	}), telemetry.MinLevel("error"))

	_ = bus.Publish(context.Background(), &engine.Event{
		Type:  engine.EventTypeStepStarted,
		Step:  "vault-init",
		Level: engine.EventTypeStepStarted.Severity(),
	})
	_ = bus.Publish(context.Background(), &engine.Event{
		Type:  engine.EventTypeStepFailed,
		Step:  "vault-init",
		Level: engine.EventTypeStepFailed.Severity(),
	})

	// Output:
	// step_failed vault-init
}
