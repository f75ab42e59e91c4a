// Command reqflow-cli walks one request form session at the terminal:
// resolve a requester and a target, watch the block verdict, and submit
// against an in-memory backend seeded with demo records.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"go.uber.org/zap"

	"github.com/libstaff/reqflow"
	"github.com/libstaff/reqflow/internal/config"
	"github.com/libstaff/reqflow/pkg/entity"
	"github.com/libstaff/reqflow/pkg/testsupport"
)

func main() {
	configPath := flag.String("config", "", "session defaults YAML (optional)")
	verbose := flag.Bool("verbose", false, "log orchestrator activity")
	flag.Parse()

	defaults := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		defaults = loaded
	}

	logger := zap.NewNop()
	if *verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("build logger: %v", err)
		}
		logger = dev
		defer logger.Sync()
	}

	backend := demoBackend()
	o := reqflow.New(backend,
		reqflow.WithLogger(logger),
		reqflow.WithDebounce(defaults.Debounce()),
		reqflow.WithLocation(defaults.Location()),
		reqflow.WithHoldShelfTime(defaults.HoldShelfTime),
		reqflow.WithDefaultFulfillment(entity.FulfillmentPreference(defaults.Fulfillment)),
	)
	defer o.Dispose()

	if err := runSession(context.Background(), o); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSession(ctx context.Context, o *reqflow.Orchestrator) error {
	fmt.Println("Demo records: requesters u1001 (clear), u1002 (blocked); items b2001, b2002.")

	var requester string
	if err := survey.AskOne(&survey.Input{Message: "Requester barcode:"}, &requester,
		survey.WithValidator(survey.Required),
		survey.WithValidator(existsValidator(func(v string) error {
			return o.ValidateRequesterBarcode(ctx, v)
		})),
	); err != nil {
		return err
	}
	o.EditRequesterBarcode(requester)
	if err := o.EnterRequesterBarcode(ctx); err != nil {
		return fmt.Errorf("resolve requester: %w", err)
	}

	var item string
	if err := survey.AskOne(&survey.Input{Message: "Item barcode:"}, &item,
		survey.WithValidator(survey.Required),
		survey.WithValidator(existsValidator(func(v string) error {
			return o.ValidateItemBarcode(ctx, v)
		})),
	); err != nil {
		return err
	}
	o.EditItemBarcode(item)
	if err := o.EnterItemBarcode(ctx); err != nil {
		return fmt.Errorf("resolve item: %w", err)
	}

	view := o.Snapshot()
	printEntities(view)

	typeOptions := make([]string, 0, len(view.AllowedTypes))
	for _, t := range view.AllowedTypes {
		typeOptions = append(typeOptions, string(t))
	}
	if len(typeOptions) == 0 {
		typeOptions = []string{string(entity.TypeHold), string(entity.TypeRecall), string(entity.TypePage)}
	}
	var chosen string
	if err := survey.AskOne(&survey.Select{Message: "Request type:", Options: typeOptions}, &chosen); err != nil {
		return err
	}
	o.SetRequestType(entity.RequestType(chosen))

	var servicePoint string
	if err := survey.AskOne(&survey.Input{
		Message: "Pickup service point id:",
		Default: "sp-main",
	}, &servicePoint); err != nil {
		return err
	}
	o.SetPickupServicePoint(servicePoint)

	return submitLoop(ctx, o)
}

// submitLoop submits, and on a patron block offers the override path
// once before giving up.
func submitLoop(ctx context.Context, o *reqflow.Orchestrator) error {
	for {
		ack, err := o.Submit(ctx)
		switch {
		case err == nil:
			fmt.Printf("Request %s submitted (%s, queue position %d).\n", ack.ID, ack.Status, ack.Position)
			return nil

		case errors.Is(err, reqflow.ErrSubmissionBlocked):
			view := o.Snapshot()
			fmt.Println("Patron is blocked from placing requests:")
			if b := view.Block.ActiveManualBlock; b != nil {
				fmt.Printf("  manual block %s: %s\n", b.ID, b.Desc)
			}
			for _, msg := range view.Block.AutomatedMessages {
				fmt.Printf("  %s\n", msg)
			}
			var override bool
			if askErr := survey.AskOne(&survey.Confirm{Message: "Override the block?"}, &override); askErr != nil {
				return askErr
			}
			if !override {
				return errors.New("submission cancelled: patron is blocked")
			}
			o.SetOverride(true)

		case errors.Is(err, reqflow.ErrSubmissionRejected):
			fmt.Println("Backend rejected the request:")
			for field, msgs := range reqflow.RejectionFields(err) {
				for _, msg := range msgs {
					fmt.Printf("  %s: %s\n", field, msg)
				}
			}
			return err

		default:
			return err
		}
	}
}

func printEntities(view reqflow.View) {
	if view.Requester != nil {
		fmt.Printf("Requester: %s (%s)\n", view.Requester.DisplayName(), view.Requester.ID)
	}
	if view.Item != nil {
		fmt.Printf("Item: %s (%s)\n", view.Item.Title, view.Item.Barcode)
		if view.Form.OpenRequestCount > 0 {
			fmt.Printf("  %d open request(s) already queued\n", view.Form.OpenRequestCount)
		}
	}
	if view.Loan != nil {
		fmt.Printf("  on loan until %s\n", view.Loan.DueDate.Format("2006-01-02"))
	}
}

// existsValidator adapts an orchestrator field validator to survey's
// validator contract. Resolution outages fail open; existence is
// re-checked at submission anyway.
func existsValidator(check func(string) error) survey.Validator {
	return func(ans interface{}) error {
		value, ok := ans.(string)
		if !ok {
			return nil
		}
		err := check(value)
		if errors.Is(err, reqflow.ErrNotFound) {
			return fmt.Errorf("no record matches %q", value)
		}
		return nil
	}
}

func demoBackend() *testsupport.FakeBackend {
	due := time.Now().Add(14 * 24 * time.Hour)
	return &testsupport.FakeBackend{
		Users: []entity.User{
			{ID: "U1001", Barcode: "u1001", Active: true, FirstName: "Ada", LastName: "Alvarez"},
			{ID: "U1002", Barcode: "u1002", Active: true, FirstName: "Ben", LastName: "Brook"},
		},
		Items: []entity.Item{
			{ID: "I2001", Barcode: "b2001", Title: "The Go Programming Language", HoldingsRecordID: "H1", Status: "Checked out"},
			{ID: "I2002", Barcode: "b2002", Title: "Structure and Interpretation", HoldingsRecordID: "H2", Status: "Available"},
		},
		Holdings: map[string]entity.Holding{
			"H1": {ID: "H1", InstanceID: "IN1"},
			"H2": {ID: "H2", InstanceID: "IN2"},
		},
		Loans: map[string]*entity.Loan{
			"I2001": {ID: "L1", ItemID: "I2001", UserID: "U1002", DueDate: due},
		},
		OpenRequests: map[string]int{"I2001": 1},
		Manual: map[string][]entity.ManualBlock{
			"U1002": {{ID: "MB1", UserID: "U1002", Desc: "Unpaid replacement fee", Requests: true}},
		},
		Allowed: []entity.RequestType{entity.TypeHold, entity.TypeRecall},
	}
}
