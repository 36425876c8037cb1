// Package shell implements the interactive REPL that drives the ext2
// core: it reads a line, tokenizes it like a POSIX shell, dispatches to
// the matching command, and prints either the command's output or an
// "unable to ..." diagnostic before re-prompting. A failed command never
// terminates the session; only a fatal load-time format error does.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/sirupsen/logrus"

	"github.com/ext2img/ext2shell/ext2"
)

// Shell holds the REPL's session state: the opened filesystem, the
// current working directory inode, and the I/O streams it reads
// commands from and writes output to.
type Shell struct {
	fs  *ext2.FileSystem
	cwd uint32

	in  *bufio.Scanner
	out io.Writer
	err io.Writer

	log *logrus.Logger
}

// New builds a Shell rooted at the filesystem's root inode.
func New(fs *ext2.FileSystem, in io.Reader, out, errOut io.Writer) *Shell {
	return &Shell{
		fs:  fs,
		cwd: ext2.RootInode,
		in:  bufio.NewScanner(in),
		out: out,
		err: errOut,
		log: logrus.StandardLogger(),
	}
}

// Run reads commands until EOF, `quit`, or `exit`, printing a prompt
// before each one. It returns nil on clean termination.
func (s *Shell) Run() error {
	for {
		fmt.Fprint(s.out, "ext2shell> ")
		if !s.in.Scan() {
			fmt.Fprintln(s.out)
			return s.in.Err()
		}

		line := strings.TrimSpace(s.in.Text())
		if line == "" {
			continue
		}

		args, err := shellwords.Parse(line)
		if err != nil {
			fmt.Fprintf(s.err, "unable to parse command line: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		if done := s.dispatch(args[0], args[1:]); done {
			return nil
		}
	}
}

// dispatch runs a single command by name, reporting its own errors to
// s.err, and returns true if the session should terminate.
func (s *Shell) dispatch(cmd string, args []string) (terminate bool) {
	switch cmd {
	case "quit", "exit":
		return true
	case "ls":
		s.cmdLS(args)
	case "cd":
		s.cmdCD(args)
	case "cat":
		s.cmdCat(args)
	case "mkdir":
		s.cmdMkdir(args)
	case "link":
		s.cmdLink(args)
	case "rm", "mount":
		fmt.Fprintln(s.out, "not yet implemented")
	case "pwd":
		s.cmdPwd(args)
	case "stat":
		s.cmdStat(args)
	case "statfs":
		s.cmdStatfs(args)
	default:
		fmt.Fprintf(s.err, "unable to run %q: no such command\n", cmd)
	}
	return false
}

func (s *Shell) cmdLS(args []string) {
	target := s.cwd
	label := "."
	if len(args) > 0 {
		label = args[0]
		resolved, err := s.fs.Resolve(label, s.cwd)
		if err != nil {
			fmt.Fprintf(s.err, "unable to list %q: %v\n", label, err)
			return
		}
		target = resolved
	}

	entries, err := s.fs.ListDir(target)
	if err != nil {
		fmt.Fprintf(s.err, "unable to list %q: %v\n", label, err)
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	fmt.Fprintln(s.out, strings.Join(names, "\t"))
}

func (s *Shell) cmdCD(args []string) {
	if len(args) == 0 {
		s.cwd = ext2.RootInode
		return
	}
	path := args[0]
	target, err := s.fs.Resolve(path, s.cwd)
	if err != nil {
		fmt.Fprintf(s.err, "unable to cd to %q: %v\n", path, err)
		return
	}
	in, err := s.fs.GetInode(target)
	if err != nil {
		fmt.Fprintf(s.err, "unable to cd to %q: %v\n", path, err)
		return
	}
	if !in.IsDir() {
		fmt.Fprintf(s.err, "unable to cd to %q: %v\n", path, ext2.ErrNotDirectory)
		return
	}
	s.cwd = target
}

func (s *Shell) cmdCat(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.err, "unable to cat: usage: cat <path>")
		return
	}
	path := args[0]
	target, err := s.fs.Resolve(path, s.cwd)
	if err != nil {
		fmt.Fprintf(s.err, "unable to cat %q: %v\n", path, err)
		return
	}
	data, err := s.fs.ReadFileTruncated(target)
	if err != nil {
		fmt.Fprintf(s.err, "unable to cat %q: %v\n", path, err)
		return
	}
	s.out.Write(data)
}

func (s *Shell) cmdMkdir(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.err, "unable to mkdir: usage: mkdir <name>")
		return
	}
	name := args[0]
	free, err := s.fs.FirstFreeInode(s.cwd)
	if err != nil {
		fmt.Fprintf(s.err, "unable to mkdir %q: %v\n", name, err)
		return
	}
	if err := s.fs.InsertEntry(s.cwd, name, free, ext2.DirTypeDir); err != nil {
		fmt.Fprintf(s.err, "unable to mkdir %q: %v\n", name, err)
		return
	}
	s.log.Debugf("mkdir %q allocated inode %d (no on-disk inode record was initialized)", name, free)
}

func (s *Shell) cmdLink(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.err, "unable to link: usage: link <src> <dst>")
		return
	}
	src, dst := args[0], args[1]
	srcInode, err := s.fs.Resolve(src, s.cwd)
	if err != nil {
		fmt.Fprintf(s.err, "unable to link %q: %v\n", src, err)
		return
	}
	in, err := s.fs.GetInode(srcInode)
	if err != nil {
		fmt.Fprintf(s.err, "unable to link %q: %v\n", src, err)
		return
	}
	ft := uint8(ext2.DirTypeRegular)
	if in.IsDir() {
		ft = ext2.DirTypeDir
	}
	if err := s.fs.InsertEntry(s.cwd, dst, srcInode, ft); err != nil {
		fmt.Fprintf(s.err, "unable to link %q to %q: %v\n", src, dst, err)
		return
	}
}

func (s *Shell) cmdPwd(_ []string) {
	fmt.Fprintf(s.out, "inode %d\n", s.cwd)
}

func (s *Shell) cmdStat(args []string) {
	target := s.cwd
	label := "."
	if len(args) > 0 {
		label = args[0]
		resolved, err := s.fs.Resolve(label, s.cwd)
		if err != nil {
			fmt.Fprintf(s.err, "unable to stat %q: %v\n", label, err)
			return
		}
		target = resolved
	}
	in, err := s.fs.GetInode(target)
	if err != nil {
		fmt.Fprintf(s.err, "unable to stat %q: %v\n", label, err)
		return
	}
	fmt.Fprintf(s.out, "inode %d: mode %#o, size %d, links %d\n", target, in.Mode, in.Size(), in.Links)
}

// cmdStatfs prints the filesystem-level summary, taking no path argument
// since it describes the whole image rather than a single inode.
func (s *Shell) cmdStatfs(_ []string) {
	fmt.Fprintln(s.out, s.fs.Superblock.Summary())
}
