// admin is the offline maintenance tool for the conversation database:
// list and search stored sessions, export a snapshot bundle, import one
// back, and delete sessions.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"folioverse.ai/internal/persistence/store"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "list":
			listCmd(os.Args[2:])
			return
		case "search":
			searchCmd(os.Args[2:])
			return
		case "show":
			showCmd(os.Args[2:])
			return
		case "export":
			exportCmd(os.Args[2:])
			return
		case "import":
			importCmd(os.Args[2:])
			return
		case "delete":
			deleteCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin <list|search|show|export|import|delete> [flags]")
	os.Exit(2)
}

func openStore(fs *flag.FlagSet, args []string) (store.Store, *flag.FlagSet) {
	dbPath := fs.String("db", "./data/folioverse.db", "sqlite database path")
	_ = fs.Parse(args)
	st, err := store.OpenSQLite(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(1)
	}
	return st, fs
}

func listCmd(args []string) {
	st, _ := openStore(flag.NewFlagSet("list", flag.ExitOnError), args)
	defer st.Close()

	recs, err := st.AllSessions()
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Timestamp.After(recs[j].Timestamp) })
	printSessions(recs)
}

func searchCmd(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	title := fs.Bool("title", false, "search titles instead of keywords")
	st, fs := openStore(fs, args)
	defer st.Close()

	terms := fs.Args()
	if len(terms) == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin search [-title] <term>...")
		os.Exit(2)
	}

	var recs []store.SessionRecord
	var err error
	if *title {
		recs, err = st.SearchByTitle(strings.Join(terms, " "))
	} else {
		recs, err = st.SearchSessions(terms)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "search:", err)
		os.Exit(1)
	}
	printSessions(recs)
}

func showCmd(args []string) {
	st, fs := openStore(flag.NewFlagSet("show", flag.ExitOnError), args)
	defer st.Close()

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin show <session_id>")
		os.Exit(2)
	}
	id := fs.Arg(0)
	sess, ok := st.LoadSession(id)
	if !ok {
		fmt.Fprintln(os.Stderr, "no such session:", id)
		os.Exit(1)
	}
	logc, _ := st.LoadChatLog(sess.ChatLogID)

	fmt.Printf("session %s  state=%s  messages=%d\n", sess.ID, sess.State, sess.MessageCount)
	if sess.Title != "" {
		fmt.Printf("title: %s\n", sess.Title)
	}
	if len(sess.Keywords) > 0 {
		fmt.Printf("keywords: %s\n", strings.Join(sess.Keywords, ", "))
	}
	fmt.Printf("participants: %s\n", strings.Join(sess.Participants, ", "))
	for _, m := range logc.Messages {
		fmt.Printf("  [%s] %s: %s\n", m.Timestamp.Format(time.RFC3339), m.SenderID, m.Content)
	}
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "", "output path (.json or .json.zst; default stdout)")
	st, _ := openStore(fs, args)
	defer st.Close()

	bundle, err := st.ExportAll()
	if err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(1)
	}
	if *out == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(bundle); err != nil {
			fmt.Fprintln(os.Stderr, "encode:", err)
			os.Exit(1)
		}
		return
	}
	if err := store.WriteBundleFile(*out, bundle); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d sessions, %d chat logs, %d brains)\n",
		*out, len(bundle.Sessions), len(bundle.ChatLogs), len(bundle.Brains))
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	in := fs.String("in", "", "bundle path (.json or .json.zst)")
	st, _ := openStore(fs, args)
	defer st.Close()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: admin import -in <bundle>")
		os.Exit(2)
	}
	bundle, err := store.ReadBundleFile(*in)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read bundle:", err)
		os.Exit(1)
	}
	if err := st.Import(bundle); err != nil {
		fmt.Fprintln(os.Stderr, "import:", err)
		os.Exit(1)
	}
	fmt.Printf("imported %d sessions, %d chat logs, %d brains\n",
		len(bundle.Sessions), len(bundle.ChatLogs), len(bundle.Brains))
}

func deleteCmd(args []string) {
	st, fs := openStore(flag.NewFlagSet("delete", flag.ExitOnError), args)
	defer st.Close()

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin delete <session_id>")
		os.Exit(2)
	}
	id := fs.Arg(0)
	if err := st.DeleteSession(id); err != nil {
		fmt.Fprintln(os.Stderr, "delete:", err)
		os.Exit(1)
	}
	fmt.Println("deleted", id)
}

func printSessions(recs []store.SessionRecord) {
	for _, r := range recs {
		title := r.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %-8s  %3d msgs  %s  %s\n",
			r.ID, r.State, r.MessageCount, r.Timestamp.Format("2006-01-02 15:04"), title)
	}
}
