package library

import "strings"

// Explanations returned by Explain, checked in order.
const (
	ExplainEmpty       = "No code to explain."
	ExplainPrint       = "This code uses the print() function to display text or values to the console/output. Print statements are commonly used for outputting information to users or debugging."
	ExplainFunction    = "This code defines a function. Functions are reusable blocks of code that perform specific tasks."
	ExplainForLoop     = "This code contains a loop that repeats a set of instructions."
	ExplainConditional = "This code makes decisions using conditional statements."
	ExplainWhileLoop   = "This code uses a while loop to repeat actions while a condition is true."
	ExplainMath        = "This code performs mathematical operations."
	ExplainAssignment  = "This code assigns values to variables."
	ExplainBasic       = "This code performs basic operations."
)

var explainRules = []struct {
	match func(string) bool
	text  string
}{
	{contains("print("), ExplainPrint},
	{contains("def "), ExplainFunction},
	{contains("for "), ExplainForLoop},
	{contains("if "), ExplainConditional},
	{contains("while "), ExplainWhileLoop},
	{func(code string) bool { return strings.ContainsAny(code, "+-*/%") }, ExplainMath},
	{contains("="), ExplainAssignment},
}

func contains(sub string) func(string) bool {
	return func(code string) bool { return strings.Contains(code, sub) }
}

// Explain gives a one-sentence description of what a snippet does, based on
// the first construct it recognizes. It never executes the code.
func Explain(code string) string {
	if strings.TrimSpace(code) == "" {
		return ExplainEmpty
	}
	for _, r := range explainRules {
		if r.match(code) {
			return r.text
		}
	}
	return ExplainBasic
}
