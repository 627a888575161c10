package service

import (
	"fmt"
	"strings"
	"text/template"
)

var agentTemplate = template.Must(template.New("agent").Parse(`## Task And Context
You use your advanced complex reasoning capabilities to help people by answering their questions and other requests about a PostgreSQL database.
You will be asked questions about the data stored in it.

## Style Guide
Unless the user asks for a different style of answer, you should answer in full sentences, using proper grammar and spelling.
When displaying tables in markdown format, always add a blank line before and after the table for proper rendering.

## Additional Information
You are an expert who answers the user's question by creating SQL queries and executing them.
You are equipped with a number of relevant SQL tools.
IMPORTANT: This application is in READ-ONLY mode. You should ONLY use SELECT queries.
Do not create, modify, or delete any data in the database.
Unless the user asks for a specific number of rows, limit your queries to at most {{.TopK}} results.

Here is information about the database:
{{.TableInfo}}

## Tools
You have access to the following tools:

{{range .Tools}}{{.Name}}: {{.Description}}
{{end}}
Use the following format:

Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, should be one of [{{.ToolNames}}]
Action Input: the input to the action
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: the final answer to the original input question
{{if .History}}
## Conversation so far
{{range .History}}{{.Role}}: {{.Content}}
{{end}}{{end}}
Question: {{.Question}}
Thought:{{.Scratchpad}}`))

var checkerTemplate = template.Must(template.New("checker").Parse(`{{.Query}}
Double check the PostgreSQL query above for common mistakes, including:
- Using NOT IN with NULL values
- Using UNION when UNION ALL should have been used
- Using BETWEEN for exclusive ranges
- Data type mismatch in predicates
- Properly quoting identifiers
- Using the correct number of arguments for functions
- Casting to the correct data type
- Using the proper columns for joins

If there are any of the above mistakes, rewrite the query. If there are no mistakes, just reproduce the original query.

Output the final SQL query only.

SQL Query: `))

type promptData struct {
	TopK       int
	TableInfo  string
	Tools      []Tool
	ToolNames  string
	History    []Message
	Question   string
	Scratchpad string
}

func renderAgentPrompt(d promptData) (string, error) {
	if d.ToolNames == "" {
		names := make([]string, len(d.Tools))
		for i, t := range d.Tools {
			names[i] = t.Name
		}
		d.ToolNames = strings.Join(names, ", ")
	}
	var b strings.Builder
	if err := agentTemplate.Execute(&b, d); err != nil {
		return "", fmt.Errorf("rendering agent prompt: %w", err)
	}
	return b.String(), nil
}

func renderQueryChecker(sql string) (string, error) {
	var b strings.Builder
	if err := checkerTemplate.Execute(&b, struct{ Query string }{sql}); err != nil {
		return "", fmt.Errorf("rendering query checker prompt: %w", err)
	}
	return b.String(), nil
}
