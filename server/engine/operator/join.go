package operator

import (
	"context"

	"github.com/imoocdb/imoocdb/server/common"
	"github.com/imoocdb/imoocdb/server/dberrors"
)

// JoinType selects NestedLoopJoin's matching strategy.
type JoinType string

const (
	CrossJoin JoinType = "CROSS"
	InnerJoin JoinType = "INNER"
	LeftJoin  JoinType = "LEFT"
	RightJoin JoinType = "RIGHT"
	FullJoin  JoinType = "FULL"
)

// NestedLoopJoin combines its two children row by row, materializing both
// sides and pairing them per joinType. A CrossJoin ignores condition; every
// other type requires one. Grounded on physical_operator.py's
// NestedLoopJoin (`cross_join`/`inner_join`/`outer_join`/`full_join`).
type NestedLoopJoin struct {
	base
	joinType    JoinType
	left, right Operator
	condition   *Condition

	pairs []common.Row
	built bool
	pos   int
}

// NewNestedLoopJoin builds a join of left and right of the given type.
// condition may be nil only for CrossJoin.
func NewNestedLoopJoin(joinType JoinType, left, right Operator, condition *Condition) *NestedLoopJoin {
	return &NestedLoopJoin{joinType: joinType, left: left, right: right, condition: condition}
}

func (j *NestedLoopJoin) Open(ctx context.Context) error {
	if j.joinType != CrossJoin && j.condition == nil {
		return dberrors.ExecutorCheckError("%s join requires a condition", j.joinType)
	}
	if err := j.left.Open(ctx); err != nil {
		return err
	}
	if err := j.right.Open(ctx); err != nil {
		return err
	}
	j.columns = append(append([]common.TableColumn{}, j.left.Columns()...), j.right.Columns()...)
	return nil
}

func (j *NestedLoopJoin) Close(ctx context.Context) error {
	if err := j.left.Close(ctx); err != nil {
		return err
	}
	return j.right.Close(ctx)
}

func (j *NestedLoopJoin) Next(ctx context.Context) (common.Row, bool, error) {
	if !j.built {
		var err error
		switch j.joinType {
		case CrossJoin:
			j.pairs, err = j.crossJoin(ctx)
		case InnerJoin:
			j.pairs, err = j.innerJoin(ctx)
		case LeftJoin:
			j.pairs, err = j.outerJoin(ctx, false)
		case RightJoin:
			j.pairs, err = j.outerJoin(ctx, true)
		case FullJoin:
			j.pairs, err = j.fullJoin(ctx)
		default:
			err = dberrors.ExecutorCheckError("unsupported join type %q", j.joinType)
		}
		if err != nil {
			return nil, false, err
		}
		j.built = true
	}
	if j.pos >= len(j.pairs) {
		return nil, false, nil
	}
	row := j.pairs[j.pos]
	j.pos++
	return row, true, nil
}

func (j *NestedLoopJoin) join(left, right common.Row) common.Row {
	out := make(common.Row, 0, len(left)+len(right))
	out = append(out, left...)
	out = append(out, right...)
	return out
}

func nullRow(n int) common.Row {
	row := make(common.Row, n)
	for i := range row {
		row[i] = common.Null()
	}
	return row
}

func (j *NestedLoopJoin) crossJoin(ctx context.Context) ([]common.Row, error) {
	leftRows, err := drainAll(ctx, j.left)
	if err != nil {
		return nil, err
	}
	rightRows, err := drainAll(ctx, j.right)
	if err != nil {
		return nil, err
	}
	out := make([]common.Row, 0, len(leftRows)*len(rightRows))
	for _, l := range leftRows {
		for _, r := range rightRows {
			out = append(out, j.join(l, r))
		}
	}
	return out, nil
}

func (j *NestedLoopJoin) innerJoin(ctx context.Context) ([]common.Row, error) {
	pairs, err := j.crossJoin(ctx)
	if err != nil {
		return nil, err
	}
	var out []common.Row
	for _, row := range pairs {
		ok, err := isConditionTrue(j.condition, rowToValues(j.columns, row))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// outerJoin implements LEFT (exchange=false) and RIGHT (exchange=true): the
// "preserved" side is j.left unless exchanged, in which case it's j.right.
// Every preserved row appears at least once, padded with NULLs when nothing
// on the other side matches.
func (j *NestedLoopJoin) outerJoin(ctx context.Context, exchange bool) ([]common.Row, error) {
	preserved, other := j.left, j.right
	if exchange {
		preserved, other = j.right, j.left
	}
	preservedRows, err := drainAll(ctx, preserved)
	if err != nil {
		return nil, err
	}
	otherRows, err := drainAll(ctx, other)
	if err != nil {
		return nil, err
	}
	padding := nullRow(len(other.Columns()))

	var out []common.Row
	for _, p := range preservedRows {
		var matched []common.Row
		for _, o := range otherRows {
			var joined common.Row
			if exchange {
				joined = j.join(o, p)
			} else {
				joined = j.join(p, o)
			}
			ok, err := isConditionTrue(j.condition, rowToValues(j.columns, joined))
			if err != nil {
				return nil, err
			}
			if ok {
				matched = append(matched, joined)
			}
		}
		if len(matched) == 0 {
			if exchange {
				matched = append(matched, j.join(padding, p))
			} else {
				matched = append(matched, j.join(p, padding))
			}
		}
		out = append(out, matched...)
	}
	return out, nil
}

func (j *NestedLoopJoin) fullJoin(ctx context.Context) ([]common.Row, error) {
	leftRows, err := drainAll(ctx, j.left)
	if err != nil {
		return nil, err
	}
	rightRows, err := drainAll(ctx, j.right)
	if err != nil {
		return nil, err
	}
	rightPadding := nullRow(len(j.right.Columns()))
	leftPadding := nullRow(len(j.left.Columns()))
	rightMatched := make([]bool, len(rightRows))

	var out []common.Row
	for _, l := range leftRows {
		var matched []common.Row
		for ri, r := range rightRows {
			joined := j.join(l, r)
			ok, err := isConditionTrue(j.condition, rowToValues(j.columns, joined))
			if err != nil {
				return nil, err
			}
			if ok {
				matched = append(matched, joined)
				rightMatched[ri] = true
			}
		}
		if len(matched) == 0 {
			matched = append(matched, j.join(l, rightPadding))
		}
		out = append(out, matched...)
	}
	for ri, r := range rightRows {
		if !rightMatched[ri] {
			out = append(out, j.join(leftPadding, r))
		}
	}
	return out, nil
}
