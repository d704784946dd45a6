package codec

import (
	"strings"

	"github.com/amirbrooks/taskport/internal/model"
)

// FormatVersion is written to every export's metadata block.
const FormatVersion = "1.0"

// DefaultSource names this engine in metadata when the caller gives no source.
const DefaultSource = "taskport"

// BuildMetadata describes an already filtered export.
func BuildMetadata(data *model.ExportData, format Format, cfg ExportConfig) *model.Metadata {
	source := strings.TrimSpace(cfg.Source)
	if source == "" {
		source = DefaultSource
	}
	return &model.Metadata{
		Version:    FormatVersion,
		Format:     string(format),
		ExportedAt: model.Now(),
		Source:     source,
		ItemCounts: data.Counts(),
		Filters:    cfg.Describe(),
	}
}
