package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldCategory is the structured log field key for a preference category.
	FieldCategory = "category"
	// FieldValue is the structured log field key for a preference value.
	FieldValue = "value"
	// FieldActionID is the structured log field key for a pending action id.
	FieldActionID = "action_id"
	// FieldActionType is the structured log field key for a pending action type.
	FieldActionType = "action_type"
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// A nil logger becomes a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	logger = OrNop(logger)

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// MatchFields describes the category/value pair being canonicalized.
func MatchFields(category, value string) []zap.Field {
	return StringFields(
		StringField{Key: FieldCategory, Value: category},
		StringField{Key: FieldValue, Value: value},
	)
}

// ActionFields describes a pending action.
func ActionFields(id, actionType string) []zap.Field {
	return StringFields(
		StringField{Key: FieldActionID, Value: id},
		StringField{Key: FieldActionType, Value: actionType},
	)
}

// CommonFields returns standard zap fields that describe the AI provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithCommonFields attaches the common AI fields to the provided logger.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}
