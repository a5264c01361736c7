package enums

import (
	"fmt"
	"strings"
)

// ReturnEntry is the processor redirect target the browser landed on. It is a hint only.
type ReturnEntry string

const (
	ReturnEntrySuccess ReturnEntry = "success"
	ReturnEntryFailure ReturnEntry = "failure"
)

func (r ReturnEntry) String() string {
	return string(r)
}

func (r ReturnEntry) IsValid() bool {
	return r == ReturnEntrySuccess || r == ReturnEntryFailure
}

// ParseReturnEntry accepts "cancel" as an alias of failure.
func ParseReturnEntry(value string) (ReturnEntry, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "success":
		return ReturnEntrySuccess, nil
	case "failure", "cancel":
		return ReturnEntryFailure, nil
	}
	return "", fmt.Errorf("invalid return entry %q", value)
}
