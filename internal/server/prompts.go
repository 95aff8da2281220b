package server

import (
	"fmt"
	"strings"

	"github.com/missionloop/missiond/internal/store"
)

// buildTaskPrompt renders the initial dispatch message for a task.
func buildTaskPrompt(task *store.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You have been assigned a task from Mission Control.\n\n")
	fmt.Fprintf(&b, "## Task: %s\n\n", task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", task.Description)
	}
	if task.Priority != "" {
		fmt.Fprintf(&b, "Priority: %s\n\n", task.Priority)
	}
	b.WriteString("Work the task to completion, then reply with a concise summary of " +
		"what you did and anything a reviewer should look at. Your reply moves " +
		"the task into review.")
	return b.String()
}

// buildReworkPrompt renders a follow-up message after a reviewer sent the
// task back. Earlier discussion is included so the agent has the thread
// even if its session was reset.
func buildReworkPrompt(task *store.Task, feedback string, comments []*store.Comment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The task %q has been reviewed and sent back for rework.\n\n", task.Title)
	fmt.Fprintf(&b, "## Reviewer feedback\n\n%s\n\n", feedback)

	var thread []string
	for _, c := range comments {
		if c.AuthorType == store.AuthorSystem {
			continue
		}
		thread = append(thread, fmt.Sprintf("[%s] %s", c.AuthorType, c.Content))
	}
	if len(thread) > 0 {
		b.WriteString("## Earlier discussion\n\n")
		b.WriteString(strings.Join(thread, "\n\n"))
		b.WriteString("\n\n")
	}
	b.WriteString("Address the feedback, then reply with a summary of the changes. " +
		"Your reply moves the task back into review.")
	return b.String()
}
