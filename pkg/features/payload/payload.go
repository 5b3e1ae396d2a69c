// Package payload projects feature rows into the request body expected by
// the deployed model endpoint.
package payload

import (
	"fmt"

	"github.com/renalytics-ai/platform/pkg/common/models"
	"github.com/renalytics-ai/platform/pkg/features/aggregate"
)

// Body is the wire payload for online prediction: one record per feature row,
// each carrying exactly the named features.
type Body struct {
	Instances  []map[string]interface{} `json:"instances"`
	Parameters map[string]interface{}   `json:"parameters,omitempty"`
}

// Build serializes rows into a prediction payload with the given ordered
// feature names. A feature name that is not a known column is a schema
// mismatch and a hard error: the model input schema is fixed by name and must
// never be default-filled.
func Build(rows []models.FeatureRow, features []string, parameters map[string]interface{}) (*Body, error) {
	if len(features) == 0 {
		features = aggregate.ModelFeatures
	}

	instances := make([]map[string]interface{}, 0, len(rows))
	for i, row := range rows {
		values := aggregate.RowValues(row)
		instance := make(map[string]interface{}, len(features))
		for _, name := range features {
			value, ok := values[name]
			if !ok {
				return nil, fmt.Errorf("row %d: feature %q not present in feature rows", i, name)
			}
			instance[name] = value
		}
		instances = append(instances, instance)
	}

	return &Body{Instances: instances, Parameters: parameters}, nil
}
