//go:build linux

package mux

import (
	"bytes"
	"encoding/binary"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rileyhilliard/sshp/internal/errors"
	"github.com/rileyhilliard/sshp/internal/logger"
	"github.com/rileyhilliard/sshp/internal/session"
)

const (
	slotStdout = 0
	slotStderr = 1
	slotExit   = 2

	// Per wake, a stream gets at most this many reads before the next fd is
	// serviced. Level-triggered polling picks up the remainder.
	readsPerWake = 4
	// Upper bound on the final drain after exit, in case something the child
	// left behind keeps writing.
	readsOnExit = 1024
)

type watched struct {
	s        *session.Session
	fds      [2]int // -1 once at EOF
	pidfd    int    // -1 when unavailable or already fired
	usePidfd bool
	exited   bool
	queued   bool
}

// finished reports whether the session can be reaped. With a pidfd the
// process exit decides; without one, EOF on both streams stands in for it.
func (w *watched) finished() bool {
	if w.usePidfd {
		return w.exited
	}
	return w.fds[slotStdout] < 0 && w.fds[slotStderr] < 0
}

type fdRef struct {
	w    *watched
	slot int
}

// Epoll multiplexes with a single epoll instance holding every session's
// pipe read ends and a pidfd per child, plus an eventfd for Wake.
type Epoll struct {
	log    logger.Logger
	epfd   int
	wakefd int
	byFD   map[int]fdRef
	live   int
	buf    []byte
	events []unix.EpollEvent
}

// NewEpoll creates an epoll multiplexer.
func NewEpoll(log logger.Logger) (*Epoll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.WrapWithCode(os.NewSyscallError("epoll_create1", err), errors.ErrMux,
			"Can't create epoll instance", "Check the open file limit (ulimit -n).")
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, errors.WrapWithCode(os.NewSyscallError("eventfd", err), errors.ErrMux,
			"Can't create wake descriptor", "Check the open file limit (ulimit -n).")
	}

	m := &Epoll{
		log:    log,
		epfd:   epfd,
		wakefd: wakefd,
		byFD:   make(map[int]fdRef),
		buf:    make([]byte, readSize),
		events: make([]unix.EpollEvent, 128),
	}
	if err := m.add(wakefd); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// NewPipe returns a close-on-exec pipe. The read end is switched to
// non-blocking at Register; the write end stays blocking for the child.
func (m *Epoll) NewPipe() (*os.File, *os.File, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return nil, nil, os.NewSyscallError("pipe2", err)
	}
	return os.NewFile(uintptr(p[0]), "|0"), os.NewFile(uintptr(p[1]), "|1"), nil
}

func (m *Epoll) Register(s *session.Session) error {
	w := &watched{s: s, fds: [2]int{-1, -1}, pidfd: -1}

	for slot, stream := range []session.Stream{session.Stdout, session.Stderr} {
		fd, err := rawFD(s.Output(stream))
		if err == nil {
			err = unix.SetNonblock(fd, true)
		}
		if err == nil {
			err = m.add(fd)
		}
		if err != nil {
			m.forget(w)
			return errors.WrapWithCode(err, errors.ErrMux,
				"Can't watch "+stream.String()+" of "+s.Host.Name, "")
		}
		w.fds[slot] = fd
		m.byFD[fd] = fdRef{w: w, slot: slot}
	}

	pidfd, err := unix.PidfdOpen(s.Pid(), 0)
	if err == nil {
		if err = m.add(pidfd); err != nil {
			unix.Close(pidfd)
		}
	}
	if err != nil {
		m.log.Debug("pidfd for %d unavailable (%v), exit detected at EOF", s.Pid(), err)
	} else {
		w.pidfd = pidfd
		w.usePidfd = true
		m.byFD[pidfd] = fdRef{w: w, slot: slotExit}
	}

	m.live++
	return nil
}

func (m *Epoll) Poll(timeout time.Duration) ([]Event, error) {
	msec := -1
	if timeout >= 0 {
		msec = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}

	n, err := unix.EpollWait(m.epfd, m.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, errors.WrapWithCode(os.NewSyscallError("epoll_wait", err), errors.ErrMux,
			"Waiting on session output failed", "")
	}

	var out []Event
	var done []*watched
	woken := false

	for _, ev := range m.events[:n] {
		fd := int(ev.Fd)
		if fd == m.wakefd {
			m.drainWake()
			if !woken {
				out = append(out, Event{Kind: Woken})
				woken = true
			}
			continue
		}

		ref, ok := m.byFD[fd]
		if !ok {
			continue
		}
		w := ref.w

		if ref.slot == slotExit {
			m.remove(w.pidfd)
			unix.Close(w.pidfd)
			w.pidfd = -1
			w.exited = true
		} else {
			out = m.read(out, w, ref.slot, readsPerWake)
		}

		if w.finished() && !w.queued {
			w.queued = true
			done = append(done, w)
		}
	}

	for _, w := range done {
		for slot := range w.fds {
			if w.fds[slot] >= 0 {
				out = m.read(out, w, slot, readsOnExit)
				m.release(w, slot)
			}
		}
		o := w.s.Wait()
		m.live--
		out = append(out, Event{Kind: Exited, Session: w.s, Outcome: o})
	}

	return out, nil
}

// read appends DataReady events for whatever stream slot has available,
// stopping at EAGAIN, EOF, or after limit reads.
func (m *Epoll) read(out []Event, w *watched, slot, limit int) []Event {
	fd := w.fds[slot]
	if fd < 0 {
		return out
	}

	for i := 0; i < limit; i++ {
		n, err := unix.Read(fd, m.buf)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return out
		case err != nil:
			m.log.Debug("read %s of %s: %v", session.Stream(slot), w.s.Host.Name, err)
			m.release(w, slot)
			return out
		case n == 0:
			m.release(w, slot)
			return out
		}
		out = append(out, Event{
			Kind:    DataReady,
			Session: w.s,
			Stream:  session.Stream(slot),
			Data:    bytes.Clone(m.buf[:n]),
		})
	}
	return out
}

// release stops watching a stream. The descriptor itself belongs to the
// session and is closed when it finishes.
func (m *Epoll) release(w *watched, slot int) {
	fd := w.fds[slot]
	if fd < 0 {
		return
	}
	m.remove(fd)
	w.fds[slot] = -1
}

func (m *Epoll) forget(w *watched) {
	for slot := range w.fds {
		m.release(w, slot)
	}
}

func (m *Epoll) add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func (m *Epoll) remove(fd int) {
	delete(m.byFD, fd)
	_ = unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (m *Epoll) drainWake() {
	var b [8]byte
	_, _ = unix.Read(m.wakefd, b[:])
}

func (m *Epoll) Wake() error {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	_, err := unix.Write(m.wakefd, b[:])
	if err == unix.EAGAIN {
		return nil
	}
	if err != nil {
		return os.NewSyscallError("eventfd write", err)
	}
	return nil
}

func (m *Epoll) Len() int { return m.live }

func (m *Epoll) Close() error {
	for fd, ref := range m.byFD {
		if ref.slot == slotExit {
			unix.Close(fd)
		}
	}
	m.byFD = nil
	unix.Close(m.wakefd)
	return unix.Close(m.epfd)
}

func rawFD(f *os.File) (int, error) {
	if f == nil {
		return -1, os.ErrInvalid
	}
	sc, err := f.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	if err := sc.Control(func(u uintptr) { fd = int(u) }); err != nil {
		return -1, err
	}
	return fd, nil
}
