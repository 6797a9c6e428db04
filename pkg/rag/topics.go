package rag

// DefaultTopics seed a fresh index with broad theological coverage.
var DefaultTopics = []string{
	"systematic theology",
	"biblical theology",
	"theological anthropology",
	"doctrine of God",
	"Christology",
	"pneumatology",
	"soteriology",
	"ecclesiology",
	"eschatology",
	"theological hermeneutics",
	"doctrine of sin",
	"doctrine of salvation",
	"doctrine of Trinity",
	"covenant theology",
	"theological ethics",
}

// DefaultBatchResults is the per-topic result cap for bulk ingestion.
const DefaultBatchResults = 20
