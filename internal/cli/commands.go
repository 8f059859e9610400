package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Defacto2/archivist"
	"github.com/Defacto2/archivist/config"
	"github.com/Defacto2/archivist/mount"
	"github.com/Defacto2/archivist/pkzip"
	"github.com/Defacto2/archivist/rar"
	"github.com/Defacto2/helper"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// filterFlags are the member selection flags shared by list and extract-all.
type filterFlags struct {
	globs []string
	exts  []string
}

func (ff *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&ff.globs, "glob", "g", nil, "include members matching the gitignore-style pattern")
	cmd.Flags().StringSliceVarP(&ff.exts, "ext", "e", nil, "include members with the filename extension")
}

func (ff *filterFlags) filter() (archivist.Filter, error) {
	var filters []archivist.Filter
	if len(ff.globs) > 0 {
		g, err := archivist.Glob(ff.globs...)
		if err != nil {
			return nil, err
		}
		filters = append(filters, g)
	}
	if len(ff.exts) > 0 {
		filters = append(filters, archivist.Extensions(ff.exts...))
	}
	if len(filters) == 0 {
		return archivist.AcceptAll, nil
	}
	return archivist.All(filters...), nil
}

func (c *CLI) listCommand() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "list <archive>",
		Short: "List the file members of an archive.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}
			h, err := archivist.Open(args[0])
			if err != nil {
				return err
			}
			entries, err := c.facade.List(cmd.Context(), h, f)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintln(c.Out, e.Path())
			}
			fmt.Fprintf(c.Err, "%s %d members in %s\n",
				c.gray("Listed"), len(entries), c.cyan(filepath.Base(h.Path)))
			return nil
		},
	}
	ff.bind(cmd)
	return cmd
}

func (c *CLI) extractCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "extract <archive> <member> | extract container://<archive>/<member>",
		Short: "Write one archive member to a file or to standard output.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var loc mount.Location
			switch len(args) {
			case 1:
				l, err := mount.ParseLocation(args[0])
				if err != nil {
					return err
				}
				loc = l
			default:
				loc = mount.Location{Archive: args[0], Member: args[1]}
			}
			h, err := archivist.Open(loc.Archive)
			if err != nil {
				return err
			}
			e, err := c.facade.ExtractOne(cmd.Context(), h, loc.Member)
			if err != nil {
				return err
			}
			d, err := e.Bytes(cmd.Context())
			if err != nil {
				return err
			}
			if !d.Found {
				return fmt.Errorf("%w: %s", ErrMissing, loc)
			}
			if out == "" {
				_, err := c.Out.Write(d.Bytes)
				return err
			}
			if err := os.WriteFile(out, d.Bytes, helper.WriteWriteRead); err != nil {
				return err
			}
			fmt.Fprintf(c.Err, "%s %s %s\n", c.green("Extracted"), loc.Member, c.gray(size(int64(d.Len()))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to the named file instead of standard output")
	return cmd
}

func (c *CLI) extractAllCommand() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "extract-all <archive> <directory>",
		Short: "Write every selected archive member into a directory.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}
			h, err := archivist.Open(args[0])
			if err != nil {
				return err
			}
			res, err := c.facade.ReadAll(cmd.Context(), h, f)
			if err != nil {
				return err
			}
			written := c.saveAll(args[1], res.Items)
			fmt.Fprintf(c.Err, "%s %d of %d members to %s\n",
				c.green("Extracted"), written, len(res.Items), c.cyan(args[1]))
			if failed := len(res.Items) - written; failed > 0 {
				return fmt.Errorf("%d members could not be extracted", failed)
			}
			return nil
		},
	}
	ff.bind(cmd)
	return cmd
}

// saveAll writes the items into dir and returns the number written.
// Failed items and members that vanished after the listing are skipped.
func (c *CLI) saveAll(dir string, items []archivist.BatchItem) int {
	written := 0
	for _, item := range items {
		err := item.Err
		if err == nil && !item.Data.Found {
			err = ErrMissing
		}
		if err == nil {
			err = save(dir, item.Path, item.Data.Bytes)
		}
		if err != nil {
			fmt.Fprintf(c.Err, "%s %s: %v\n", c.yellow("Skipped"), item.Path, err)
			continue
		}
		written++
	}
	return written
}

// save writes the member into dir. Names that would escape dir are kept inside it.
func save(dir, member string, b []byte) error {
	dst, err := securejoin.SecureJoin(dir, filepath.FromSlash(member))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, b, helper.WriteWriteRead)
}

func (c *CLI) addCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <archive> <member> <file|->",
		Short: "Add a file, or standard input, to an archive as the named member.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := archivist.Open(args[0])
			if err != nil {
				return err
			}
			in := archivist.FromFile(args[2])
			if args[2] == "-" {
				in = archivist.FromReader(io.NopCloser(cmd.InOrStdin()))
			}
			if err := c.facade.Add(cmd.Context(), h, args[1], in); err != nil {
				return err
			}
			how := "deflate"
			if c.facade.Policy().Store(args[1]) {
				how = "store"
			}
			fmt.Fprintf(c.Err, "%s %s to %s %s\n",
				c.green("Added"), args[1], c.cyan(filepath.Base(h.Path)), c.gray(how))
			return nil
		},
	}
	return cmd
}

func (c *CLI) coverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cover <archive>",
		Short: "Print the member most likely to be the cover image.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := archivist.Open(args[0])
			if err != nil {
				return err
			}
			entries, err := c.facade.List(cmd.Context(), h, archivist.RejectDirectoryLike)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Path())
			}
			name := archivist.Cover(filepath.Base(h.Path), names...)
			if name == "" {
				return fmt.Errorf("%w: no cover image in %s", ErrMissing, filepath.Base(h.Path))
			}
			fmt.Fprintln(c.Out, name)
			return nil
		},
	}
}

func (c *CLI) policyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "policy <member>...",
		Short: "Show whether members would be stored or deflated in zip family archives.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p := c.facade.Policy()
			for _, name := range args {
				how := c.gray("deflate")
				if p.Store(name) {
					how = c.yellow("store")
				}
				fmt.Fprintf(c.Out, "%s\t%s\n", how, name)
			}
			fmt.Fprintf(c.Err, "%s %s, archives larger than this are appended\n",
				c.gray("Grow threshold"), size(p.Threshold()))
			return nil
		},
	}
}

func (c *CLI) methodsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "methods <archive>",
		Short: "Print the compression methods used by a zip family archive.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			h, err := archivist.Open(args[0])
			if err != nil {
				return err
			}
			if h.Family != archivist.FamilyZip {
				return fmt.Errorf("%w: %s is not a zip family archive", archivist.ErrUnsupported, filepath.Base(h.Path))
			}
			methods, err := pkzip.Methods(h.Path)
			if err != nil {
				return err
			}
			s := make([]string, 0, len(methods))
			for _, m := range methods {
				s = append(s, m.String())
			}
			fmt.Fprintln(c.Out, strings.Join(s, " "))
			return nil
		},
	}
}

func (c *CLI) detailsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "details <archive>",
		Short: "Print the size of every member, including directories of rar family archives.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := archivist.Open(args[0])
			if err != nil {
				return err
			}
			switch h.Family {
			case archivist.FamilyRar:
				b := rar.New(c.cfg.ToolFolder,
					rar.WithScratch(c.cfg.ScratchDir),
					rar.WithTimeouts(c.cfg.Timeouts()),
					rar.WithLogger(c.logger))
				details, err := b.Details(cmd.Context(), h.Path)
				if err != nil {
					return err
				}
				for _, d := range details {
					if d.Dir {
						fmt.Fprintf(c.Out, "%12s  %s/\n", c.gray("<dir>"), d.Name)
						continue
					}
					fmt.Fprintf(c.Out, "%12d  %s\n", d.Size, d.Name)
				}
				return nil
			case archivist.FamilyZip:
				m, err := mount.Open(h.Path, mount.WithMemory())
				if err != nil {
					return err
				}
				defer m.Close()
				return m.Walk(func(n mount.Node) error {
					_, err := fmt.Fprintf(c.Out, "%12d  %s\n", n.Size(), n.Name)
					return err
				})
			case archivist.FamilyUnknown:
			}
			return fmt.Errorf("%w: %s", archivist.ErrUnsupported, h.Path)
		},
	}
}

func (c *CLI) initCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			name := c.configPath
			if name == "" {
				name = config.ConfigPath()
			}
			if _, err := os.Stat(name); err == nil && !force {
				fmt.Fprintf(c.Err, "%s %s already exists, use --force to replace it\n", c.yellow("Skipped"), name)
				return nil
			}
			if err := c.cfg.Save(name); err != nil {
				return err
			}
			fmt.Fprintf(c.Err, "%s %s\n", c.green("Created"), c.cyan(name))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing config file")
	return cmd
}

func size(n int64) string {
	return message.NewPrinter(language.English).Sprintf("%d bytes", n)
}
