package app

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rems-acc/rems/pkg/router"
)

// PrintRoutes writes a METHOD / PATH / NAME table.
func PrintRoutes(w io.Writer, routes []router.RouteInfo) error {
	if len(routes) == 0 {
		_, err := fmt.Fprintln(w, "No routes registered.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tPATH\tNAME")
	fmt.Fprintln(tw, "------\t----\t----")
	for _, ri := range routes {
		name := ri.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ri.Method, ri.Path, name)
	}
	return tw.Flush()
}
