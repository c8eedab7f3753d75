package hal

import (
	"context"
)

// CommandsRel is the relation that lists the commands a resource accepts.
const CommandsRel = "commands"

// Command is an invocable link offered by a resource's commands listing.
type Command struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// FetchCommands resolves the commands relation of rep and returns its links,
// excluding self, sorted by relation name. A representation without a
// commands link has no commands.
func FetchCommands(ctx context.Context, client Client, rep Representation) ([]Command, error) {
	href, ok := rep.Href(CommandsRel)
	if !ok {
		return nil, nil
	}
	listing, err := client.Get(ctx, href)
	if err != nil {
		return nil, err
	}

	var cmds []Command
	for _, rel := range listing.Rels() {
		if rel == SelfRel {
			continue
		}
		if target, ok := listing.Href(rel); ok {
			cmds = append(cmds, Command{Rel: rel, Href: target})
		}
	}
	return cmds, nil
}
