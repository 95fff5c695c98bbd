package domain

// GenerationMode names the prompt template used for answer generation.
type GenerationMode string

const (
	ModeNormal          GenerationMode = "normal"
	ModeTable           GenerationMode = "table"
	ModeComparison      GenerationMode = "comparison"
	ModeComparisonTable GenerationMode = "comparison_table"
)

type modeKey struct {
	table      bool
	comparison bool
}

var modeTable = map[modeKey]GenerationMode{
	{table: false, comparison: false}: ModeNormal,
	{table: true, comparison: false}:  ModeTable,
	{table: false, comparison: true}:  ModeComparison,
	{table: true, comparison: true}:   ModeComparisonTable,
}

// SelectMode maps the two independent request flags onto a template.
func SelectMode(tableMode, comparison bool) GenerationMode {
	return modeTable[modeKey{table: tableMode, comparison: comparison}]
}
