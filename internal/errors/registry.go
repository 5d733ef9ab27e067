package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Compile errors (E100-E119)
	"E100": {CategoryCompile, "Template node failed to compile"},
	"E101": {CategoryCompile, "Unknown component"},
	"E102": {CategoryCompile, "Repeat item has an empty key"},
	"E103": {CategoryCompile, "Duplicate repeat key"},
	"E104": {CategoryCompile, "Invalid repeat source"},
	"E105": {CategoryCompile, "Unknown custom directive"},
	"E106": {CategoryCompile, "Unknown method"},
	"E107": {CategoryCompile, "Rich text could not be parsed"},

	// Evaluation errors (E120-E139)
	"E120": {CategoryEvaluation, "Expression evaluation failed"},
	"E121": {CategoryEvaluation, "Computed property failed"},
	"E122": {CategoryEvaluation, "Watcher stopped after repeated failures"},
	"E123": {CategoryEvaluation, "Expression failed to compile"},

	// Callback errors (E140-E159)
	"E140": {CategoryCallback, "Watcher callback failed"},
	"E141": {CategoryCallback, "Lifecycle handler failed"},
	"E142": {CategoryCallback, "Event handler failed"},
	"E143": {CategoryCallback, "Error handler failed"},
	"E144": {CategoryCallback, "Method call failed"},

	// Scheduler errors (E160-E179)
	"E160": {CategoryScheduler, "Scheduled task failed"},
	"E161": {CategoryScheduler, "Flush exceeded the iteration warning threshold"},

	// Prop errors (E180-E199)
	"E180": {CategoryProp, "Component wrote to a prop it receives from its parent"},
	"E181": {CategoryProp, "Required prop missing"},
	"E182": {CategoryProp, "Prop type mismatch"},
	"E183": {CategoryProp, "Prop validator rejected value"},
	"E184": {CategoryProp, "Reserved data key"},
	"E185": {CategoryProp, "Data key shadows a prop"},
	"E186": {CategoryProp, "External data key is not writable"},

	// Bridge errors (E200-E219)
	"E200": {CategoryBridge, "Unknown module"},
	"E201": {CategoryBridge, "Unknown module method"},
	"E202": {CategoryBridge, "Unknown callback id"},
	"E203": {CategoryBridge, "Host invocation failed"},
	"E204": {CategoryBridge, "Callback dispatch failed"},

	// Config errors (E220-E239)
	"E220": {CategoryConfig, "Invalid configuration"},
	"E221": {CategoryConfig, "Configuration file unreadable"},
	"E222": {CategoryConfig, "Component bundle unreadable"},
	"E223": {CategoryConfig, "Invalid command-line argument"},

	// Protocol errors (E240-E259)
	"E240": {CategoryProtocol, "Malformed frame"},
	"E241": {CategoryProtocol, "Unknown frame type"},
	"E242": {CategoryProtocol, "Command sink write failed"},
	"E243": {CategoryProtocol, "Event targets an unknown node"},
	"E244": {CategoryProtocol, "Session queue full"},
	"E245": {CategoryProtocol, "Session closed"},
}

// Registered reports whether code has a template.
func Registered(code string) bool {
	_, ok := registry[code]
	return ok
}
