// Package cmd holds the CLI subcommands mounted under the server root.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/cinecam/internal/device"
	"github.com/smazurov/cinecam/internal/device/sim"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the cameras on the rig",
		Long:  `Enumerates every camera with its rig position, zoom range and supported capture formats.`,
		Run: func(_ *cobra.Command, _ []string) {
			catalog := device.NewCatalog(sim.Rig())
			for _, d := range catalog.Devices() {
				fmt.Printf("%s  %s (%s)\n", d.ID, d.Name, d.Position)
				fmt.Printf("    zoom: native %gx, digital %g-%g\n", d.NativeZoom, d.MinZoom, d.MaxZoom)
				for _, f := range d.Formats {
					spaces := ""
					for i, cs := range f.ColorSpaces {
						if i > 0 {
							spaces += ","
						}
						spaces += string(cs)
					}
					fmt.Printf("    %dx%d up to %gfps [%s]\n", f.Width, f.Height, f.MaxFrameRate(), spaces)
				}
			}
		},
	}
}
