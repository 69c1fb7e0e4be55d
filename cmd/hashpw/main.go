// Command hashpw prints the argon2id hash of a password, for seeding user
// rows or resetting credentials by hand.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/oneone404/One-Shield-sub000/internal/crypto"
)

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, out io.Writer) int {
	password, err := readPassword(args, stdin, out)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintln(out, hash)
	return 0
}

// readPassword takes the password from the first argument, an interactive
// prompt when stdin is a terminal, or a line piped on stdin.
func readPassword(args []string, stdin io.Reader, out io.Writer) (string, error) {
	if len(args) >= 2 {
		return args[1], nil
	}

	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	scanner := bufio.NewScanner(stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no password provided (usage: hashpw <password>, or pipe it on stdin)")
	}
	return strings.TrimRight(scanner.Text(), "\r\n"), nil
}
