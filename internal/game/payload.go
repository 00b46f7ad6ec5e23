package game

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodePayload unmarshals the action payload into dst (a pointer to a
// struct) and checks its validate tags. An empty payload decodes as the
// zero value and is still validated.
func DecodePayload(action Action, dst any) error {
	if len(action.Payload) > 0 && !bytes.Equal(bytes.TrimSpace(action.Payload), []byte("null")) {
		if err := json.Unmarshal(action.Payload, dst); err != nil {
			return fmt.Errorf("%w for %s: %v", ErrInvalidPayload, action.Type, err)
		}
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w for %s: %s", ErrInvalidPayload, action.Type, describe(err))
	}
	return nil
}

// DecodeOptions unmarshals template options into dst. Missing options are
// left for the template to default.
func DecodeOptions(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
