package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alanyoungcy/fortune/internal/domain"
)

// PromptApprover asks on out and reads a y/N answer from in. Anything other
// than "y" or "yes" rejects.
func PromptApprover(in io.Reader, out io.Writer, describe func(domain.TxRequest) string) ApproveFunc {
	br := bufio.NewReader(in)
	return func(ctx context.Context, req domain.TxRequest) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if describe != nil {
			fmt.Fprintln(out, describe(req))
		}
		fmt.Fprint(out, "Approve transaction? [y/N]: ")
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

// AutoApprove approves every request.
func AutoApprove(context.Context, domain.TxRequest) (bool, error) { return true, nil }
