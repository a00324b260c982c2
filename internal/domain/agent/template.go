package agent

// Template is a pre-built agent or workflow blueprint offered in the library.
type Template struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"` // "agent" | "workflow"
	Description string `json:"description"`
}

// Templates returns the built-in template library.
func Templates() []Template {
	return []Template{
		{ID: 1, Name: "Web Scraper", Type: "agent", Description: "Template for web scraping tasks"},
		{ID: 2, Name: "Data Processor", Type: "workflow", Description: "Process and analyze data"},
		{ID: 3, Name: "Document Parser", Type: "agent", Description: "Parse and extract document data"},
	}
}
