package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLastPage(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		want    int
		wantErr bool
	}{
		{
			name: "last link wins",
			html: `<ul class="pagination">
				<li><a data-ci-pagination-page="1">1</a></li>
				<li><a data-ci-pagination-page="2">2</a></li>
				<li><a data-ci-pagination-page="87">Last</a></li>
			</ul>`,
			want: 87,
		},
		{
			name: "single page",
			html: `<ul class="pagination"><li><a data-ci-pagination-page="1">1</a></li></ul>`,
			want: 1,
		},
		{
			name: "padded value",
			html: `<ul class="pagination"><li><a data-ci-pagination-page=" 12 ">12</a></li></ul>`,
			want: 12,
		},
		{
			name:    "no control",
			html:    `<div>nothing here</div>`,
			wantErr: true,
		},
		{
			name:    "missing attribute",
			html:    `<ul class="pagination"><li><a>next</a></li></ul>`,
			wantErr: true,
		},
		{
			name:    "not a number",
			html:    `<ul class="pagination"><li><a data-ci-pagination-page="last">x</a></li></ul>`,
			wantErr: true,
		},
		{
			name:    "zero",
			html:    `<ul class="pagination"><li><a data-ci-pagination-page="0">x</a></li></ul>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLastPage("<html><body>" + tt.html + "</body></html>")
			if tt.wantErr {
				require.ErrorIs(t, err, ErrPaginationUnreadable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newResolver(s *fakeSession) *PaginationResolver {
	return &PaginationResolver{
		Session: s,
		Waiter:  testWaiter(s),
		Site:    DefaultSite,
		URL:     listingURL,
		Timeout: 30 * time.Millisecond,
		Log:     testLogger(),
	}
}

func TestResolveLastPage(t *testing.T) {
	s := newFakeSession()
	s.listings[listingURL] = fakeListing{
		details:    []string{detail("A")},
		pagination: `<ul class="pagination"><li><a data-ci-pagination-page="2">2</a></li><li><a data-ci-pagination-page="5">Last</a></li></ul>`,
	}

	last, err := newResolver(s).ResolveLastPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, last)
	assert.Equal(t, []string{listingURL}, s.navigated)
}

func TestResolveLastPage_Timeout(t *testing.T) {
	s := newFakeSession()
	s.listings[listingURL] = fakeListing{details: []string{detail("A")}}

	_, err := newResolver(s).ResolveLastPage(context.Background())

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, PhasePagination, timeout.Phase)
	assert.Equal(t, listingURL, timeout.URL)
	assert.True(t, IsFatal(err))
}

func TestResolveLastPage_HangingNavigation(t *testing.T) {
	s := &hangingSession{hangNavigate: true}
	r := &PaginationResolver{
		Session: s,
		Waiter:  Waiter{Session: s, Interval: time.Millisecond},
		Site:    DefaultSite,
		URL:     listingURL,
		Timeout: 50 * time.Millisecond,
		Log:     testLogger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	_, err := r.ResolveLastPage(ctx)

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, PhasePagination, timeout.Phase)
	assert.True(t, IsFatal(err))
	assert.Less(t, time.Since(start), time.Second)
}
