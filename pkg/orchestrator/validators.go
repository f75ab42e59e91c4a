package orchestrator

import (
	"context"
	"fmt"

	"github.com/libstaff/reqflow/pkg/entity"
	"github.com/libstaff/reqflow/pkg/resolve"
)

// Field validators run silent existence checks for async field-level
// validation: they return ErrNotFound or ErrResolutionFailed without
// touching session state or superseding in-flight lookups.
//
// In duplicate mode a check is skipped while the field still holds the
// identifier copied from the source record; it existed at duplication
// time, and re-checking would only fail on records retired since. The
// check re-arms as soon as the operator edits the field.

// ValidateItemBarcode checks that an item with the barcode exists.
func (o *Orchestrator) ValidateItemBarcode(ctx context.Context, value string) error {
	value = entity.NormalizeBarcode(value)
	if value == "" {
		return nil
	}
	if o.initErr != nil {
		return o.initErr
	}
	if o.skipCopiedCheck(value, func(f entity.FormState) (string, string) {
		return f.ItemBarcode, f.CopiedItemID
	}) {
		return nil
	}

	res, err := o.resolver.ResolveItem(ctx, entity.Barcode(value), resolve.Options{Silent: true})
	if err != nil {
		return err
	}
	if !res.Found() {
		return fmt.Errorf("%w: item barcode %q", ErrNotFound, value)
	}
	return nil
}

// ValidateRequesterBarcode checks that a patron with the barcode exists.
func (o *Orchestrator) ValidateRequesterBarcode(ctx context.Context, value string) error {
	value = entity.NormalizeBarcode(value)
	if value == "" {
		return nil
	}
	if o.initErr != nil {
		return o.initErr
	}
	if o.skipCopiedCheck(value, func(f entity.FormState) (string, string) {
		return f.RequesterBarcode, f.CopiedRequesterID
	}) {
		return nil
	}

	res, err := o.resolver.ResolveUser(ctx, entity.Barcode(value), resolve.Options{Silent: true})
	if err != nil {
		return err
	}
	if !res.Found() {
		return fmt.Errorf("%w: requester barcode %q", ErrNotFound, value)
	}
	return nil
}

// ValidateInstanceHRID checks that an instance with the HRID exists.
func (o *Orchestrator) ValidateInstanceHRID(ctx context.Context, value string) error {
	value = entity.NormalizeBarcode(value)
	if value == "" {
		return nil
	}
	if o.initErr != nil {
		return o.initErr
	}
	if o.skipCopiedCheck(value, func(f entity.FormState) (string, string) {
		return f.InstanceHRID, f.CopiedInstanceID
	}) {
		return nil
	}

	res, err := o.resolver.ResolveInstance(ctx, entity.HRID(value), resolve.Options{Silent: true})
	if err != nil {
		return err
	}
	if !res.Found() {
		return fmt.Errorf("%w: instance hrid %q", ErrNotFound, value)
	}
	return nil
}

// skipCopiedCheck reports whether the value under validation is still
// the identifier copied from a duplicated record's field.
func (o *Orchestrator) skipCopiedCheck(value string, pick func(entity.FormState) (fieldValue, copiedID string)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mode != entity.ModeDuplicate {
		return false
	}
	fieldValue, copiedID := pick(o.form)
	return copiedID != "" && fieldValue == value
}
