// SPDX-License-Identifier: AGPL-3.0-only
package proxy

import "fmt"

// injectScenario returns a copy of the message list with the scenario snapshot
// prepended to the last user message. System messages are pulled to the front
// first; a leading user message counts as a system message because some chat
// front ends ship the character card that way. With no snapshot or no user
// message to carry it, the list is returned unchanged apart from the
// reordering.
func injectScenario(messages []chatMessage, snapshot string) []chatMessage {
	if len(messages) == 0 {
		return messages
	}

	var system, rest []chatMessage
	for i, msg := range messages {
		if msg.Role == "system" || (i == 0 && msg.Role == "user") {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	if snapshot != "" {
		for i := len(rest) - 1; i >= 0; i-- {
			if rest[i].Role != "user" {
				continue
			}
			rest[i].Content = fmt.Sprintf("<current_scenario>\n%s\n</current_scenario>\n\n%s", snapshot, rest[i].Content)
			break
		}
	}

	return append(system, rest...)
}
