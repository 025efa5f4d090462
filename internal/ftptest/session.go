package ftptest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

type session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader

	loggedIn   bool
	user       string
	cwd        string
	renameFrom string
	pasvList   net.Listener
	binary     bool
}

var handlers = map[string]func(*session, string){
	"CWD":  (*session).handleCWD,
	"CDUP": func(s *session, _ string) { s.handleCWD("..") },
	"PWD":  func(s *session, _ string) { s.handlePWD() },
	"LIST": (*session).handleLIST,
	"NLST": (*session).handleNLST,
	"MKD":  (*session).handleMKD,
	"RMD":  (*session).handleRMD,
	"DELE": (*session).handleDELE,
	"RNFR": (*session).handleRNFR,
	"RNTO": (*session).handleRNTO,
	"SIZE": (*session).handleSIZE,
	"RETR": (*session).handleRETR,
	"STOR": (*session).handleSTOR,
	"TYPE": (*session).handleTYPE,
	"EPSV": func(s *session, _ string) { s.handleEPSV() },
	"PASV": func(s *session, _ string) { s.handlePASV() },
	"SYST": func(s *session, _ string) { s.reply(215, "UNIX Type: L8") },
}

func newSession(server *Server, conn net.Conn) *session {
	return &session{
		server: server,
		conn:   conn,
		reader: bufio.NewReader(conn),
		cwd:    "/",
	}
}

func (s *session) serve() {
	defer s.close()
	s.reply(220, "ftptest ready.")

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb, arg, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)
		s.server.count(verb)
		if verb == "PASS" {
			s.server.logger.Debug("ftptest command", "cmd", "PASS ****")
		} else {
			s.server.logger.Debug("ftptest command", "cmd", line)
		}

		switch verb {
		case "USER":
			s.user = arg
			s.reply(331, "Password required.")
			continue
		case "PASS":
			s.handlePASS(arg)
			continue
		case "QUIT":
			s.reply(221, "Goodbye.")
			return
		case "NOOP":
			s.reply(200, "NOOP ok.")
			continue
		}

		h, ok := handlers[verb]
		if !ok {
			s.reply(502, "Command not implemented.")
			continue
		}
		if !s.loggedIn {
			s.reply(530, "Not logged in.")
			continue
		}
		if deny := s.server.opts.Deny; deny != nil && deny(verb, s.resolveArg(verb, arg)) {
			s.reply(550, "Permission denied.")
			continue
		}
		h(s, arg)
	}
}

func (s *session) close() {
	if s.pasvList != nil {
		s.pasvList.Close()
	}
	s.conn.Close()
}

func (s *session) reply(code int, msg string) {
	fmt.Fprintf(s.conn, "%d %s\r\n", code, msg)
}

// replyError maps filesystem errors to 550 replies.
func (s *session) replyError(err error) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.reply(550, "No such file or directory.")
	case errors.Is(err, fs.ErrExist):
		s.reply(550, "File exists.")
	case errors.Is(err, fs.ErrPermission):
		s.reply(550, "Permission denied.")
	default:
		s.reply(550, err.Error())
	}
}

func (s *session) resolve(p string) string {
	if p == "" {
		return s.cwd
	}
	if !path.IsAbs(p) {
		p = path.Join(s.cwd, p)
	}
	return path.Clean(p)
}

func (s *session) resolveArg(verb, arg string) string {
	switch verb {
	case "PWD", "EPSV", "PASV", "TYPE", "SYST":
		return ""
	case "LIST", "NLST":
		if strings.HasPrefix(arg, "-") {
			arg = ""
		}
	}
	return s.resolve(arg)
}

func (s *session) handlePASS(pass string) {
	opts := s.server.opts
	if opts.User != "" && (s.user != opts.User || pass != opts.Password) {
		s.reply(530, "Login incorrect.")
		return
	}
	s.loggedIn = true
	s.reply(230, "Login successful.")
}

func (s *session) handlePWD() {
	s.reply(257, fmt.Sprintf("%q is the current directory.", s.cwd))
}

func (s *session) handleCWD(arg string) {
	p := s.resolve(arg)
	info, err := s.server.Fs.Stat(p)
	if err != nil {
		s.replyError(err)
		return
	}
	if !info.IsDir() {
		s.reply(550, "Not a directory.")
		return
	}
	s.cwd = p
	s.reply(250, "Directory successfully changed.")
}

func (s *session) handleTYPE(arg string) {
	switch strings.ToUpper(arg) {
	case "A", "I", "L 8":
		s.binary = strings.ToUpper(arg) != "A"
		s.reply(200, "Type set to "+arg+".")
	default:
		s.reply(504, "Type not supported.")
	}
}

func (s *session) readDir(arg string) ([]os.FileInfo, error) {
	if strings.HasPrefix(arg, "-") {
		arg = ""
	}
	p := s.resolve(arg)
	info, err := s.server.Fs.Stat(p)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []os.FileInfo{info}, nil
	}
	return afero.ReadDir(s.server.Fs, p)
}

func (s *session) handleLIST(arg string) {
	entries, err := s.readDir(arg)
	if err != nil {
		s.replyError(err)
		return
	}
	s.sendData("Here comes the directory listing.", func(w io.Writer) error {
		for _, e := range entries {
			if _, err := fmt.Fprintf(w, "%s 1 owner group %d %s %s\r\n",
				e.Mode().String(), e.Size(), formatTime(e.ModTime()), e.Name()); err != nil {
				return err
			}
		}
		return nil
	})
}

// formatTime renders ls -l style: clock for the last six months, year
// otherwise.
func formatTime(t time.Time) string {
	if time.Since(t) < 180*24*time.Hour && !t.After(time.Now()) {
		return t.Format("Jan 02 15:04")
	}
	return t.Format("Jan 02  2006")
}

func (s *session) handleNLST(arg string) {
	entries, err := s.readDir(arg)
	if err != nil {
		s.replyError(err)
		return
	}
	s.sendData("Here comes the file list.", func(w io.Writer) error {
		for _, e := range entries {
			if _, err := fmt.Fprintf(w, "%s\r\n", e.Name()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *session) handleMKD(arg string) {
	p := s.resolve(arg)
	if _, err := s.server.Fs.Stat(p); err == nil {
		s.reply(550, "File exists.")
		return
	}
	if _, err := s.server.Fs.Stat(path.Dir(p)); err != nil {
		s.replyError(err)
		return
	}
	if err := s.server.Fs.Mkdir(p, 0o755); err != nil {
		s.replyError(err)
		return
	}
	s.reply(257, fmt.Sprintf("%q created.", p))
}

func (s *session) handleRMD(arg string) {
	p := s.resolve(arg)
	info, err := s.server.Fs.Stat(p)
	if err != nil {
		s.replyError(err)
		return
	}
	if !info.IsDir() {
		s.reply(550, "Not a directory.")
		return
	}
	children, err := afero.ReadDir(s.server.Fs, p)
	if err != nil {
		s.replyError(err)
		return
	}
	if len(children) > 0 {
		s.reply(550, "Directory not empty.")
		return
	}
	if err := s.server.Fs.Remove(p); err != nil {
		s.replyError(err)
		return
	}
	s.reply(250, "Directory removed.")
}

func (s *session) handleDELE(arg string) {
	p := s.resolve(arg)
	info, err := s.server.Fs.Stat(p)
	if err != nil {
		s.replyError(err)
		return
	}
	if info.IsDir() {
		s.reply(550, "Is a directory.")
		return
	}
	if err := s.server.Fs.Remove(p); err != nil {
		s.replyError(err)
		return
	}
	s.reply(250, "File deleted.")
}

func (s *session) handleRNFR(arg string) {
	p := s.resolve(arg)
	if _, err := s.server.Fs.Stat(p); err != nil {
		s.reply(550, "File not found.")
		return
	}
	s.renameFrom = p
	s.reply(350, "Ready for RNTO.")
}

func (s *session) handleRNTO(arg string) {
	if s.renameFrom == "" {
		s.reply(503, "Bad sequence of commands. Send RNFR first.")
		return
	}
	from := s.renameFrom
	s.renameFrom = ""
	if err := s.server.Fs.Rename(from, s.resolve(arg)); err != nil {
		s.replyError(err)
		return
	}
	s.reply(250, "Rename successful.")
}

func (s *session) handleSIZE(arg string) {
	if s.server.opts.DisableSize {
		s.reply(502, "Command not implemented.")
		return
	}
	if s.server.opts.BinarySize && !s.binary {
		s.reply(550, "SIZE not allowed in ASCII mode.")
		return
	}
	p := s.resolve(arg)
	info, err := s.server.Fs.Stat(p)
	if err != nil {
		s.replyError(err)
		return
	}
	if info.IsDir() {
		s.reply(550, "Not a regular file.")
		return
	}
	size := info.Size()
	if f := s.server.opts.SizeFunc; f != nil {
		size = f(p, size)
	}
	s.reply(213, strconv.FormatInt(size, 10))
}

func (s *session) handleRETR(arg string) {
	p := s.resolve(arg)
	info, err := s.server.Fs.Stat(p)
	if err != nil {
		s.replyError(err)
		return
	}
	if info.IsDir() {
		s.reply(550, "Is a directory.")
		return
	}
	f, err := s.server.Fs.Open(p)
	if err != nil {
		s.replyError(err)
		return
	}
	defer f.Close()
	s.sendData("Opening BINARY mode data connection.", func(w io.Writer) error {
		_, err := io.Copy(w, f)
		return err
	})
}

func (s *session) handleSTOR(arg string) {
	p := s.resolve(arg)
	f, err := s.server.Fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		s.replyError(err)
		return
	}
	defer f.Close()

	dc, err := s.acceptData()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	s.reply(150, "Ok to send data.")
	_, err = io.Copy(f, dc)
	dc.Close()
	if err != nil {
		s.reply(426, "Connection closed; transfer aborted.")
		return
	}
	s.reply(226, "Transfer complete.")
}

func (s *session) sendData(msg string, fn func(io.Writer) error) {
	dc, err := s.acceptData()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}
	s.reply(150, msg)
	err = fn(dc)
	dc.Close()
	if err != nil {
		s.reply(426, "Connection closed; transfer aborted.")
		return
	}
	s.reply(226, "Transfer complete.")
}

func (s *session) acceptData() (net.Conn, error) {
	if s.pasvList == nil {
		return nil, errors.New("no passive listener")
	}
	l := s.pasvList
	s.pasvList = nil
	defer l.Close()
	if tl, ok := l.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(10 * time.Second))
	}
	return l.Accept()
}

func (s *session) listenPassive() (net.Listener, error) {
	if s.pasvList != nil {
		s.pasvList.Close()
		s.pasvList = nil
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s.pasvList = l
	return l, nil
}

func (s *session) handleEPSV() {
	if s.server.opts.DisableEPSV {
		s.reply(502, "EPSV not implemented.")
		return
	}
	l, err := s.listenPassive()
	if err != nil {
		s.reply(425, "Can't open passive connection.")
		return
	}
	_, port, _ := net.SplitHostPort(l.Addr().String())
	s.reply(229, fmt.Sprintf("Entering Extended Passive Mode (|||%s|)", port))
}

func (s *session) handlePASV() {
	l, err := s.listenPassive()
	if err != nil {
		s.reply(425, "Can't open passive connection.")
		return
	}
	port := l.Addr().(*net.TCPAddr).Port
	s.reply(227, fmt.Sprintf("Entering Passive Mode (127,0,0,1,%d,%d).", port/256, port%256))
}
