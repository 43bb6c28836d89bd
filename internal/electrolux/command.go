package electrolux

// Command is a sparse map of wire-named fields sent to the command endpoint.
type Command map[string]any

// Diff returns the fields present in after whose values differ from before.
// Fields that disappeared are not included since the API has no way to
// unset them.
func Diff(before, after ReportedProperties) Command {
	prev := before.Wire()
	cmd := Command{}
	for key, value := range after.Wire() {
		if old, ok := prev[key]; ok && old == value {
			continue
		}
		cmd[key] = value
	}
	return cmd
}
