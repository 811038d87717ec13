package interact

import (
	"context"
	"fmt"

	"github.com/lance13c/cdplink/internal/browser"
)

// UploadFile opens url and attaches file to the input matched by selector.
func UploadFile(ctx context.Context, p browser.Page, url, selector, file string) error {
	if err := p.Goto(ctx, url); err != nil {
		return err
	}
	if err := p.WaitForSelector(ctx, selector); err != nil {
		return err
	}

	input, err := p.QuerySelector(ctx, selector)
	if err != nil {
		return err
	}
	if input == nil {
		return fmt.Errorf("%w: file input %q on %s", ErrElementNotFound, selector, url)
	}

	if err := input.UploadFile(ctx, file); err != nil {
		return fmt.Errorf("failed to upload %s: %w", file, err)
	}
	return nil
}
