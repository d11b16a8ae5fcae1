package ml

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Display is the human-facing rendering of a result: a verdict headline and the
// probability of the predicted class as a percentage.
type Display struct {
	Severity        string `json:"severity"`
	Headline        string `json:"headline"`
	ConfidenceLabel string `json:"confidence_label"`
	Confidence      string `json:"confidence"`
}

var headlines = map[Label]Display{
	Benign:    {Severity: "success", Headline: "BENIGN - Non-cancerous tumor", ConfidenceLabel: "Benign Probability"},
	Malignant: {Severity: "warning", Headline: "MALIGNANT - Cancerous tumor", ConfidenceLabel: "Malignant Probability"},
}

func Render(result PredictionResult, tag language.Tag) Display {
	d := headlines[result.Label]
	d.Confidence = message.NewPrinter(tag).Sprintf("%.1f%%", result.Confidence()*100)
	return d
}
