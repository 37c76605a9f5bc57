// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package log

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/logtags"
	"go.uber.org/zap"
)

// FormatWithContextTags formats the string and prepends the context
// tags.
func FormatWithContextTags(ctx context.Context, format string, args ...interface{}) string {
	var buf strings.Builder
	if tags := logtags.FromContext(ctx); tags != nil {
		buf.WriteByte('[')
		buf.WriteString(tags.String())
		buf.WriteString("] ")
	}
	fmt.Fprintf(&buf, format, args...)
	return buf.String()
}

// tagFields converts the logtags attached to ctx into zap fields. A tag
// without a value is logged as an empty string.
func tagFields(ctx context.Context) []zap.Field {
	tags := logtags.FromContext(ctx)
	if tags == nil {
		return nil
	}
	fields := make([]zap.Field, 0, len(tags.Get()))
	for _, t := range tags.Get() {
		fields = append(fields, zap.String(t.Key(), t.ValueStr()))
	}
	return fields
}
