package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/grovetools/superstate/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{Verbose: verbose, Out: os.Stderr}
}

// Handle prints a message for err based on its code and returns err.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	details := map[string]interface{}{}
	if ie, ok := err.(*errors.IndexError); ok && ie.Details != nil {
		details = ie.Details
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(h.Out, "❌ Configuration not found. Create a superstate.yml or pass --config.\n")

	case errors.ErrCodeConfigInvalid:
		fmt.Fprintf(h.Out, "❌ Invalid configuration: %v\n", err)
		fmt.Fprintf(h.Out, "Run 'superstate config schema' to see the accepted keys.\n")

	case errors.ErrCodeEntityNotFound:
		fmt.Fprintf(h.Out, "❌ %s '%v' is not in the index\n", details["kind"], details["path"])

	case errors.ErrCodeDependencyCycle:
		fmt.Fprintf(h.Out, "❌ Formula columns depend on each other: %v\n", details["columns"])

	case errors.ErrCodeStorageFailed, errors.ErrCodePersistenceFailed:
		fmt.Fprintf(h.Out, "❌ %v\n", err)
		fmt.Fprintf(h.Out, "Check that the vault and state directories are writable.\n")

	case errors.ErrCodeDispatcherClosed, errors.ErrCodeQueueClosed:
		fmt.Fprintf(h.Out, "❌ The index is shutting down.\n")

	default:
		fmt.Fprintf(h.Out, "❌ Error: %v\n", err)
	}

	if h.Verbose {
		if ie, ok := err.(*errors.IndexError); ok {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", ie.ToJSON())
		}
	}
	return err
}
