package google

import (
	"math"

	"sketchcraft.ai/internal/gen"
	"sketchcraft.ai/internal/sim/catalogs"
	"sketchcraft.ai/internal/sim/tuning"
)

// Backends is the set of model adapters the catalog configures.
type Backends struct {
	Text   *TextModel
	Images map[gen.Backend]gen.ImageGenerator
	Video  *Veo
}

// FromCatalog builds adapters for every model the catalog names. Image
// backends without a model id are left out; Video is nil without one.
func FromCatalog(c *Client, cat *catalogs.Catalog, g tuning.Generation) Backends {
	b := Backends{Images: map[gen.Backend]gen.ImageGenerator{}}
	if m, ok := cat.Model(catalogs.ModelAnalysis); ok {
		b.Text = &TextModel{Client: c, Model: m, AttributeKeys: cat.AttributeKeys()}
	}
	if m, ok := cat.Model(catalogs.ModelGemini); ok {
		b.Images[gen.BackendGemini] = &GeminiImages{Client: c, Model: m}
	}
	if m, ok := cat.Model(catalogs.ModelImagen); ok {
		b.Images[gen.BackendImagen] = &Imagen{Client: c, Model: m}
	}
	if m, ok := cat.Model(catalogs.ModelVeo); ok {
		b.Video = &Veo{Client: c, Model: m, DurationSeconds: int(math.Ceil(g.VideoSeconds))}
	}
	return b
}
