package clmiddleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// hookWriter runs hook once, right before the first byte or the header
// reaches the client. The hook can still read the final status and add
// headers.
type hookWriter struct {
	gin.ResponseWriter
	once sync.Once
	hook func()
}

func (w *hookWriter) fire() {
	w.once.Do(w.hook)
}

func (w *hookWriter) WriteHeaderNow() {
	w.fire()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *hookWriter) Write(data []byte) (int, error) {
	w.fire()
	return w.ResponseWriter.Write(data)
}

func (w *hookWriter) WriteString(s string) (int, error) {
	w.fire()
	return w.ResponseWriter.WriteString(s)
}

func (w *hookWriter) Flush() {
	w.fire()
	w.ResponseWriter.Flush()
}

// beforeWrite runs the rest of the chain with hook attached to the
// response. Responses without a body fire the hook once the chain returns.
func beforeWrite(c *gin.Context, hook func()) {
	w := &hookWriter{ResponseWriter: c.Writer, hook: hook}
	c.Writer = w
	c.Next()
	w.fire()
}
