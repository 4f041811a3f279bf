// Package export turns filtered views and rendered charts into downloadable
// files.
package export

import (
	"github.com/shpitdev/datadash/pkg/chart"
	"github.com/shpitdev/datadash/pkg/dataset"
)

const (
	CSVFilename = "datos_filtrados.csv"
	CSVMIMEType = "text/csv"
	PNGFilename = "grafico.png"
	PNGMIMEType = "image/png"
)

// Artifact is a named, typed blob ready to be served or written to disk.
type Artifact struct {
	Filename string
	MIMEType string
	Data     []byte
}

// CSVArtifact packages ds as datos_filtrados.csv.
func CSVArtifact(ds *dataset.Dataset) (Artifact, error) {
	data, err := ToCSV(ds)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Filename: CSVFilename, MIMEType: CSVMIMEType, Data: data}, nil
}

// PNGArtifact rasterizes h as grafico.png.
func PNGArtifact(h *chart.Handle) (Artifact, error) {
	data, err := ToPNG(h)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Filename: PNGFilename, MIMEType: PNGMIMEType, Data: data}, nil
}
