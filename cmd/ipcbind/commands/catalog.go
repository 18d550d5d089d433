package commands

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/telnet2/go-practice/go-ipcbind/internal/demo"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/catalog"
)

var catalogJSON bool

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the command and event catalog",
	Long: `Print the catalog configured for this directory. Without a catalog
file the built-in demo catalog is shown.`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func init() {
	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "Print the catalog as JSON")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cat, source, err := loadCatalog(afero.NewOsFs())
	if err != nil {
		return err
	}

	out := newPrinter(cmd.OutOrStdout())
	if catalogJSON {
		return out.JSON(cat)
	}
	out.Catalog(cat, source)
	return nil
}

// loadCatalog reads the configured catalog file, falling back to the demo
// catalog when it does not exist. The second value names the source.
func loadCatalog(fsys afero.Fs) (*catalog.Catalog, string, error) {
	path := appConfig.Catalog
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	if path == "" {
		return demo.Catalog(), "built-in demo", nil
	}

	if _, err := fsys.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return demo.Catalog(), "built-in demo", nil
	}
	cat, err := catalog.Load(fsys, path)
	if err != nil {
		return nil, "", err
	}
	return cat, path, nil
}
