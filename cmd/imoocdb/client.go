package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imoocdb/imoocdb/server/wire/pg"
)

var (
	clientAddress  string
	clientUser     string
	clientDatabase string
	clientPassword string
)

// newClientCommand builds a terminal REPL that reads statements terminated
// by ';' from stdin and runs them against a running `imoocdb serve`
// instance, grounded on original_source's main.py `--client` REPL loop.
func newClientCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "a terminal client for a running imoocdb server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient()
		},
	}
	cmd.Flags().StringVar(&clientAddress, "address", "127.0.0.1:54321", "server address")
	cmd.Flags().StringVar(&clientUser, "user", "imoocdb", "user name sent in the StartupMessage")
	cmd.Flags().StringVar(&clientDatabase, "database", "imoocdb", "database name sent in the StartupMessage")
	cmd.Flags().StringVar(&clientPassword, "password", "abcd", "cleartext password")
	return cmd
}

func runClient() error {
	conn, err := net.Dial("tcp", clientAddress)
	if err != nil {
		return err
	}
	defer conn.Close()

	r := pg.NewReader(conn)
	w := pg.NewWriter(conn)

	if err := w.WriteInt32(8); err != nil {
		return err
	}
	if err := w.WriteInt32(80877103); err != nil {
		return err
	}
	if _, err := r.ReadByte(); err != nil { // SSLRequest reply, always 'N'
		return err
	}

	if err := writeStartupMessage(w, clientUser, clientDatabase); err != nil {
		return err
	}
	if _, _, err := readMessageHeader(r); err != nil { // AuthenticationCleartextPassword
		return err
	}

	password := append([]byte(clientPassword), 0)
	if err := w.WriteBytes([]byte{'p'}); err != nil {
		return err
	}
	if err := w.WriteInt32(int32(4 + len(password))); err != nil {
		return err
	}
	if err := w.WriteBytes(password); err != nil {
		return err
	}

	typ, body, err := readMessageHeader(r)
	if err != nil {
		return err
	}
	if typ == 'E' {
		return fmt.Errorf("authentication failed: %s", body)
	}

	fmt.Println("connected. enter statements terminated by ';', or \\q to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	var pending strings.Builder
	for {
		if _, _, err := readMessageHeader(r); err != nil { // ReadyForQuery
			return err
		}
		fmt.Print("imoocdb> ")
		if !scanner.Scan() {
			return nil
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == `\q` {
			return w.WriteBytes(append([]byte{'X'}, 0, 0, 0, 4))
		}
		pending.WriteString(line)
		pending.WriteString(" ")
		if !strings.Contains(line, ";") {
			continue
		}
		sql := append([]byte(pending.String()), 0)
		pending.Reset()

		if err := w.WriteBytes([]byte{'Q'}); err != nil {
			return err
		}
		if err := w.WriteInt32(int32(4 + len(sql))); err != nil {
			return err
		}
		if err := w.WriteBytes(sql); err != nil {
			return err
		}
		if err := printQueryResponse(r); err != nil {
			return err
		}
	}
}

func writeStartupMessage(w *pg.Writer, user, database string) error {
	var body []byte
	appendPair := func(k, v string) {
		body = append(body, k...)
		body = append(body, 0)
		body = append(body, v...)
		body = append(body, 0)
	}
	appendPair("user", user)
	appendPair("database", database)
	body = append(body, 0)

	if err := w.WriteInt32(int32(8 + len(body))); err != nil {
		return err
	}
	if err := w.WriteInt32(3 << 16); err != nil {
		return err
	}
	return w.WriteBytes(body)
}

func readMessageHeader(r *pg.Reader) (byte, []byte, error) {
	typ, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	length, err := r.ReadInt32()
	if err != nil {
		return 0, nil, err
	}
	body, err := r.ReadBytes(int(length) - 4)
	if err != nil {
		return 0, nil, err
	}
	return typ, body, nil
}

// printQueryResponse reads and prints every message belonging to one
// statement's response, stopping after CommandComplete.
func printQueryResponse(r *pg.Reader) error {
	var columnNames []string
	for {
		typ, body, err := readMessageHeader(r)
		if err != nil {
			return err
		}
		switch typ {
		case 'T':
			columnNames = parseRowDescription(body)
			fmt.Println(strings.Join(columnNames, "\t"))
		case 'D':
			fmt.Println(strings.Join(parseDataRow(body), "\t"))
		case 'C':
			fmt.Println(strings.TrimRight(string(body), "\x00"))
			return nil
		case 'E', 'N':
			fmt.Fprintln(os.Stderr, strings.TrimRight(string(body), "\x00"))
			return nil
		}
	}
}

func parseRowDescription(body []byte) []string {
	if len(body) < 2 {
		return nil
	}
	count := binary.BigEndian.Uint16(body[:2])
	pos := 2
	names := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		end := strings.IndexByte(string(body[pos:]), 0)
		names = append(names, string(body[pos:pos+end]))
		pos += end + 1 + 4 + 2 + 4 + 2 + 4 + 2
	}
	return names
}

func parseDataRow(body []byte) []string {
	if len(body) < 2 {
		return nil
	}
	count := binary.BigEndian.Uint16(body[:2])
	pos := 2
	values := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		length := int32(binary.BigEndian.Uint32(body[pos : pos+4]))
		pos += 4
		values = append(values, string(body[pos:pos+int(length)]))
		pos += int(length)
	}
	return values
}
