package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/gatewave/gatewave-go/pkg/log"
)

// FilterOptions selects which events the filter command keeps.
type FilterOptions struct {
	Output    string
	ConnID    string
	DeviceID  string
	FrameType string
	SubID     string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// buildFilter translates the string-typed command line options into a
// reader filter, validating each one.
func (o FilterOptions) buildFilter() (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: o.ConnID,
		DeviceID:     o.DeviceID,
		FrameType:    o.FrameType,
	}

	var err error
	if filter.TimeStart, err = parseTimeBound("time-start", o.TimeStart); err != nil {
		return filter, err
	}
	if filter.TimeEnd, err = parseTimeBound("time-end", o.TimeEnd); err != nil {
		return filter, err
	}

	if o.Layer != "" {
		l, err := parseLayer(o.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if o.Direction != "" {
		d, err := parseDirection(o.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if o.Category != "" {
		c, err := parseCategory(o.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	return filter, nil
}

func parseTimeBound(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format: %w", name, err)
	}
	return &t, nil
}

// keepsEvent applies the predicates the reader filter cannot express:
// matching frame events against a wire subscription ID.
func (o FilterOptions) keepsEvent(event log.Event) bool {
	if o.SubID == "" {
		return true
	}
	return event.Frame != nil && event.Frame.SubscriptionID == o.SubID
}

// RunFilter copies the events matching opts into a new capture file.
func RunFilter(path string, opts FilterOptions) error {
	filter, err := opts.buildFilter()
	if err != nil {
		return err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	kept := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if !opts.keepsEvent(event) {
			continue
		}
		logger.Log(event)
		kept++
	}

	fmt.Printf("Filtered %d events to %s\n", kept, opts.Output)
	return nil
}
