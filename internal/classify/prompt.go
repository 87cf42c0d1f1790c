package classify

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxPromptText bounds the message text sent to a provider.
const maxPromptText = 12000

const systemPrompt = "You are a job application email categorizer. Only respond with valid JSON."

// Prompt builds the single-message classification prompt.
func Prompt(text string) string {
	var sb strings.Builder

	sb.WriteString("Categorize the following email into one of the job application status ")
	sb.WriteString("categories and extract relevant details. Only the JSON is expected in ")
	sb.WriteString("the response, not a single word more.\n\n")
	writeCategories(&sb)

	sb.WriteString("\nIf the status is 'False positive', only return: ")
	sb.WriteString(`{"job_application_status": "False positive"}`)
	sb.WriteString("\nIf the status is not 'False positive', return: ")
	sb.WriteString(`{"company_name": "company_name", "job_application_status": "status", "job_title": "job_title"}`)
	sb.WriteString("\n\nEmail: ")
	sb.WriteString(truncate(text, maxPromptText))

	return sb.String()
}

// batchPrompt builds one prompt covering every item.
func batchPrompt(items []BatchItem) string {
	var sb strings.Builder

	sb.WriteString("Process the following emails and return a JSON array with one result ")
	sb.WriteString("for each email.\n\n")
	writeCategories(&sb)

	sb.WriteString("\nFor each email, extract job_application_status (one of the categories), ")
	sb.WriteString("company_name and job_title. Leave company_name and job_title empty ")
	sb.WriteString("for 'False positive'.\n\nReturn format:\n")
	sb.WriteString(`[{"email_id": "id1", "job_application_status": "...", "company_name": "...", "job_title": "..."}]`)
	sb.WriteString("\n\nEmails to process:\n")

	per := maxPromptText / max(len(items), 1)
	for i, item := range items {
		fmt.Fprintf(&sb, "\n--- Email %d (ID: %s) ---\n%s\n", i+1, item.ID, truncate(item.Text, per))
	}

	return sb.String()
}

func writeCategories(sb *strings.Builder) {
	sb.WriteString("Job application status categories:\n")
	for _, l := range Labels {
		sb.WriteString("- ")
		sb.WriteString(l)
		sb.WriteString("\n")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) && len(s) > 0 {
		s = s[:len(s)-1]
	}
	return s
}

// wireResult is the JSON shape providers answer with.
type wireResult struct {
	EmailID     string `json:"email_id,omitempty"`
	CompanyName string `json:"company_name"`
	Status      string `json:"job_application_status"`
	JobTitle    string `json:"job_title"`
}

func (w wireResult) result(source string) Result {
	return Normalize(Result{
		Label:       w.Status,
		CompanyName: w.CompanyName,
		JobTitle:    w.JobTitle,
		Source:      source,
	})
}

// cleanJSON strips the markdown fences some models wrap answers in.
func cleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseResult decodes a single-message answer.
func parseResult(provider, raw string) (Result, error) {
	var w wireResult
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &w); err != nil {
		return Result{}, &ProviderError{
			Provider: provider,
			Kind:     KindMalformed,
			Message:  fmt.Sprintf("decoding %q: %v", abbreviate(raw), err),
			Err:      err,
		}
	}
	if strings.TrimSpace(w.Status) == "" {
		return Result{}, &ProviderError{
			Provider: provider,
			Kind:     KindMalformed,
			Message:  fmt.Sprintf("missing job_application_status in %q", abbreviate(raw)),
		}
	}
	return w.result(provider), nil
}

// parseBatch decodes a batched answer keyed by email_id.
func parseBatch(provider, raw string) (map[string]Result, error) {
	var ws []wireResult
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &ws); err != nil {
		// Some models wrap the array in an object.
		var wrapped map[string][]wireResult
		if json.Unmarshal([]byte(cleanJSON(raw)), &wrapped) != nil || len(wrapped) != 1 {
			return nil, &ProviderError{
				Provider: provider,
				Kind:     KindMalformed,
				Message:  fmt.Sprintf("decoding batch %q: %v", abbreviate(raw), err),
				Err:      err,
			}
		}
		for _, v := range wrapped {
			ws = v
		}
	}

	out := make(map[string]Result, len(ws))
	for _, w := range ws {
		if w.EmailID == "" || strings.TrimSpace(w.Status) == "" {
			continue
		}
		out[w.EmailID] = w.result(provider)
	}
	return out, nil
}

func abbreviate(s string) string {
	return truncate(strings.TrimSpace(s), 200)
}
