// =============================================================================
// OBS Clinic Migration - Main Entry Point
// =============================================================================
//
// USAGE:
//   obsmigrate convert   - Write REDCap import files for every instrument
//   obsmigrate compare   - Reconcile converted data with double data entry
//   obsmigrate subjects  - Pick subjects for double data entry
//   obsmigrate validate  - Validate configuration files without converting
//   obsmigrate version   - Display the application version
//
// ARCHITECTURE:
//   - cmd/         : CLI command definitions (Cobra)
//   - internal/    : Conversion, reconciliation and file formats
//   - pkg/         : Output file helpers
//   - instruments/ : One YAML file per REDCap instrument
//
// =============================================================================

package main

import (
	"github.com/rseeto/obs-clinic-migration/cmd"
)

func main() {
	cmd.Execute()
}
