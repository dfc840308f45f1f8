package ai

import (
	"strings"
	"time"
)

const systemPrompt = "You are a planning assistant for a small marketing team. Always answer with a single JSON object and nothing else."

// priorityItem is one task as the model sees it.
type priorityItem struct {
	Title       string
	Description string
	DueDate     string
	Impact      string
}

func buildPrioritizePrompt(items []priorityItem) string {
	var b strings.Builder

	b.WriteString("You are an AI assistant that suggests task prioritization based on deadlines and impact.\n\n")
	b.WriteString("Given the following list of tasks, suggest a priority (High, Medium, or Low) for each task and provide a reason for the suggestion. ")
	b.WriteString("Consider the due date and impact of each task when determining the priority.\n\n")
	b.WriteString("Tasks:\n")
	for _, it := range items {
		b.WriteString("- Title: ")
		b.WriteString(it.Title)
		b.WriteString("\n  Description: ")
		b.WriteString(it.Description)
		b.WriteString("\n  Due Date: ")
		b.WriteString(it.DueDate)
		b.WriteString("\n  Impact: ")
		b.WriteString(it.Impact)
		b.WriteString("\n")
	}
	b.WriteString("\nReply as {\"prioritizedTasks\": [{\"title\": string, \"priority\": string, \"reason\": string}]}. ")
	b.WriteString("Use each task title exactly as given.\n")

	return b.String()
}

func buildPostPrompt(platform, topic, tone string) string {
	var b strings.Builder

	b.WriteString("You are a social media expert. Generate a social media post for the following platform: ")
	b.WriteString(platform)
	b.WriteString(". The post should be about the following topic: ")
	b.WriteString(topic)
	b.WriteString(". The tone of the post should be: ")
	b.WriteString(tone)
	b.WriteString(".\n\nReply as {\"post\": string}.\n")

	return b.String()
}

func isoDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
