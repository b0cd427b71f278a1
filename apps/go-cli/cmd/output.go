package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	pb "github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/apphost"
)

// yamlOut prints data as a YAML document to w.
func yamlOut(w io.Writer, data any) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	enc.Encode(data)
	enc.Close()
}

// formatPayload renders a bundle as compact JSON, or "{}" when empty.
func formatPayload(b pb.Bundle) string {
	if len(b) == 0 {
		return "{}"
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(b))
	}
	return string(data)
}

func printEvent(w io.Writer, ev apphost.Event) {
	fmt.Fprintf(w, "Emitted %s at %s\n", ev.Name, ev.EmittedAt.Format("15:04:05.000"))
	fmt.Fprintf(w, "  id:      %s\n", ev.ID)
	fmt.Fprintf(w, "  payload: %s\n", formatPayload(ev.Payload))
}

func printLaunch(w io.Writer, intent *pb.Intent) {
	fmt.Fprintf(w, "Launched %s/%s (flags %#x)\n", intent.Component.Package, intent.Component.Class, uint32(intent.Flags))
}
