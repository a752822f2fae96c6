package stage

import (
	"fmt"
	"strings"

	"github.com/sells-group/qualify-cli/internal/model"
)

const triageSystemPrompt = `You screen social media profiles as potential partners for a business. Score how promising the profile is as a lead (lead_score, 0-100) and how much usable data the profile offers (data_richness, 0-100). Be conservative: a sparse profile scores low on data_richness regardless of follower count. Respond with a valid JSON object only.`

const preprocessSystemPrompt = `You condense a social media profile's content into a compact brief for an analyst. Identify recurring themes, audience signals, content style and any brands mentioned. Do not speculate beyond the provided content. Respond with a valid JSON object only.`

const analysisSystemPrompt = `You are a partnership analyst. Decide whether a social media profile is a good fit for a business and explain why. fit_score is 0-100; qualification is "qualified" at 70 or above, "maybe" from 40 to 69 and "unqualified" below 40. Never invent engagement figures that are not provided. Respond with a valid JSON object only.`

const contextSystemPrompt = `You turn a short business description into a structured brief describing its ideal partner profile. Respond with a valid JSON object only.`

const maxCaptionChars = 280

func buildTriagePrompt(in Input) string {
	var b strings.Builder
	writeBusiness(&b, in)
	b.WriteString("\n")
	writeProfile(&b, in.Profile, 3)
	return b.String()
}

func buildPreprocessPrompt(in Input) string {
	var b strings.Builder
	writeProfile(&b, in.Profile, postSample(in.Depth))
	return b.String()
}

func buildAnalysisPrompt(in Input) string {
	var b strings.Builder
	writeBusiness(&b, in)
	b.WriteString("\n")
	writeProfile(&b, in.Profile, postSample(in.Depth))

	if t := in.Triage; t != nil {
		fmt.Fprintf(&b, "\nTriage: lead_score=%.0f data_richness=%.0f niche=%q\n", t.LeadScore, t.DataRichness, t.Niche)
		if len(t.RedFlags) > 0 {
			fmt.Fprintf(&b, "Red flags: %s\n", strings.Join(t.RedFlags, "; "))
		}
	}
	if p := in.Preprocess; p != nil {
		fmt.Fprintf(&b, "\nContent brief: %s\n", p.Summary)
		writeList(&b, "Themes", p.Themes)
		writeList(&b, "Audience signals", p.AudienceSignals)
		writeList(&b, "Brand mentions", p.BrandMentions)
	}

	b.WriteString("\n")
	switch in.Depth {
	case model.DepthExtended:
		b.WriteString("Provide fit_score, qualification, summary, strengths, risks, audience_match, outreach_angle, recommendations, content_pillars and collaboration_ideas.")
	case model.DepthDeep:
		b.WriteString("Provide fit_score, qualification, summary, strengths, risks, audience_match, outreach_angle and recommendations.")
	default:
		b.WriteString("Provide fit_score, qualification, summary, strengths and risks. Keep it brief.")
	}
	return b.String()
}

func buildContextPrompt(in Input) string {
	bz := in.Business
	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s\n", bz.Name)
	if bz.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", bz.Industry)
	}
	if bz.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", bz.Website)
	}
	if bz.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", bz.Description)
	}
	if bz.TargetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", bz.TargetAudience)
	}
	return b.String()
}

func postSample(d model.Depth) int {
	switch d {
	case model.DepthExtended:
		return 30
	case model.DepthDeep:
		return 12
	default:
		return 3
	}
}

// writeBusiness prefers the enriched context when a context stage ran.
func writeBusiness(b *strings.Builder, in Input) {
	fmt.Fprintf(b, "Business: %s\n", in.Business.Name)
	if c := in.Context; c != nil {
		fmt.Fprintf(b, "Business brief: %s\n", c.Summary)
		fmt.Fprintf(b, "Ideal partner: %s\n", c.IdealCustomer)
		writeList(b, "Keywords", c.Keywords)
		writeList(b, "Avoid", c.Exclusions)
		return
	}
	if in.Business.Description != "" {
		fmt.Fprintf(b, "Description: %s\n", in.Business.Description)
	}
	if in.Business.TargetAudience != "" {
		fmt.Fprintf(b, "Target audience: %s\n", in.Business.TargetAudience)
	}
}

func writeProfile(b *strings.Builder, p *model.Profile, maxPosts int) {
	if p == nil {
		b.WriteString("Profile: unavailable\n")
		return
	}
	fmt.Fprintf(b, "Profile: @%s", p.Username)
	if p.FullName != "" {
		fmt.Fprintf(b, " (%s)", p.FullName)
	}
	b.WriteString("\n")
	fmt.Fprintf(b, "Followers: %d  Following: %d  Posts: %d\n", p.FollowersCount, p.FollowingCount, p.PostsCount)
	if p.Category != "" {
		fmt.Fprintf(b, "Category: %s\n", p.Category)
	}
	if p.IsVerified {
		b.WriteString("Verified: yes\n")
	}
	if p.Bio != "" {
		fmt.Fprintf(b, "Bio: %s\n", p.Bio)
	}
	if p.ExternalURL != "" {
		fmt.Fprintf(b, "Link: %s\n", p.ExternalURL)
	}

	if e := p.Engagement; p.HasEngagementData && e != nil {
		fmt.Fprintf(b, "Engagement: avg likes %.1f, avg comments %.1f, rate %.2f%% over %d posts\n",
			e.AvgLikes, e.AvgComments, e.EngagementRate, e.SampleSize)
	} else {
		b.WriteString("Engagement: not available\n")
	}

	posts := p.Posts
	if len(posts) > maxPosts {
		posts = posts[:maxPosts]
	}
	if len(posts) == 0 {
		return
	}
	b.WriteString("Recent posts:\n")
	for i, post := range posts {
		fmt.Fprintf(b, "%d. %s\n", i+1, truncate(oneLine(post.Caption), maxCaptionChars))
	}
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, ", "))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
