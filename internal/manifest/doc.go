// Package manifest assembles the controller's deployment document.
//
// The deploy directory of the source tree holds static YAML fragments
// (".yaml") and Jinja templates (".j2"). Templates are rendered with gonja
// against the image repository and version being deployed; static fragments
// are copied as they are. Every fragment becomes one or more YAML documents
// of a single "---" separated stream.
//
// Example usage:
//
//	doc, err := manifest.Assemble(snap, manifest.Variables{
//	    Image:   "ttl.sh/mortenlj-yakup",
//	    Version: "1.2.0",
//	})
//	if err != nil {
//	    return err
//	}
//	os.WriteFile("deploy.yaml", doc, 0644)
package manifest
