package domain

// ToolDefinition describes a function tool advertised to the upstream
// provider. Adapters translate it into their vendor's wire format.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  ToolParameters
}

// ToolParameters is a JSON-schema object describing tool arguments.
type ToolParameters struct {
	Type       string
	Properties map[string]any
	Required   []string
}

// DefaultTools returns the tool declarations attached to every chat
// request sent upstream.
func DefaultTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "executeSQL",
			Description: "Run a SQL query for immediate results without adding it to the transformation pipeline. Use for exploratory queries, data inspection, or when users want to see results right away.",
			Parameters: ToolParameters{
				Type: "object",
				Properties: map[string]any{
					"sql": map[string]any{
						"type":        "string",
						"description": "The complete DuckDB-compatible SQL query. CRITICAL: Use proper SQL syntax only - no English phrases! Use: = (not 'equals'), < (not 'less than'), > (not 'greater than'), BETWEEN x AND y (not 'IS BETWEEN' or 'is around'), LIKE '%pattern%' (not 'contains'), IS NULL/IS NOT NULL only. Example: WHERE age BETWEEN 20 AND 30 (correct), NOT WHERE age IS BETWEEN 20 AND 30 (wrong)",
					},
				},
				Required: []string{"sql"},
			},
		},
		{
			Name:        "addTransformation",
			Description: "Add a SQL transformation step to the data pipeline. Use when users want to filter, transform, or process data as part of their workflow.",
			Parameters: ToolParameters{
				Type: "object",
				Properties: map[string]any{
					"sql": map[string]any{
						"type":        "string",
						"description": "The SQL query for the transformation. Use 'previous_step' to reference the output of the last transformation, or reference other transformation outputs by their alias names.",
					},
					"outputAlias": map[string]any{
						"type":        "string",
						"description": "A meaningful name for this transformation step using underscores (e.g., 'filtered_data', 'high_value_orders', 'aggregated_results')",
					},
				},
				Required: []string{"sql", "outputAlias"},
			},
		},
	}
}
