package dialogue

// Scripted copy for the dialogue tree. Texts live here so the engine reads
// as pure control flow and tests can match on stable fragments.

const (
	msgGreeting = "Hi! I'm the Wisio support assistant. Are you here as a client or as an expert?"

	msgClientMenu = "Welcome! What do you need help with?"
	msgExpertMenu = "Welcome! What do you need help with?"

	msgCreditMenu   = "Credits and billing — what exactly went wrong?"
	msgApproachMenu = "Approaches — what exactly went wrong?"

	msgAskService      = "Which service are you looking for? For example: gst, accounting, legal advice."
	msgServiceGuidance = "Here's how to find a %s expert: open the Experts tab and filter by \"%s\". Compare profiles by rating and reviews, then send an access request or wait for an expert to approach your request."

	msgDocuments = "You can upload documents from the Documents tab. Experts only see a document after you approve their access request — check the Access Requests tab for pending ones. To revoke access, delete the document or reject the request."

	msgRatings = "You can rate an expert after an approach from the Ratings tab. Ratings are public on the expert's profile; the expert can post one reply to your review. To change a rating, open it and submit a new score."

	msgTopUp = "To buy credits, open the credit balance in the top bar and choose a package. Payment is confirmed immediately and the new balance shows in the header. Credits never expire."

	msgHowApproaches = "An approach spends credits to contact a client about their request. The client sees your profile and message and can reply or ignore. Credits are only well spent when your profile matches the request, so filter requests by your services first."

	msgTechnical = "Let's try the usual fixes first: refresh the page, clear your browser cache, then sign out and back in. If a page still looks broken, try another browser. Uploads fail most often when the file is over the size limit."

	msgAskClientCount = "How many clients did you approach without getting any response?"
	msgBadClientCount = "Please give me the number of clients as a digit, at least 1."

	msgCheckingAccount = "One moment, checking your account…"
	msgThinking        = "One moment…"

	msgAutoRefund = "Good news: we've refunded %d credits for %d approach(es) where the client never responded. The credits are already back in your balance."

	msgManualReview = "This one needs a manual review by our billing team. We'll check your account and get back to you within 48 hours. I'll close this chat for now."

	msgEvalFailed = "I couldn't verify your account automatically. Let me connect you with a human instead."

	msgSatisfaction = "Did that answer your question?"

	msgResolved = "Glad I could help! You can start a new conversation any time."

	msgAskContact  = "How would you like us to contact you?"
	msgCallNow     = "You can reach us right now at %s. Your reference is %s."
	msgAskCallTime = "When is a good time to call you?"
	msgCallbackSet = "Got it — we'll call you around \"%s\". Your reference is %s."
	msgEmailSLA    = "We'll email you within 24 hours. Your reference is %s."

	msgProvisionalNote = "This is a provisional reference; you'll receive a confirmed ticket number by email."

	msgAskFallback = "Tell me a bit more about what you need, and I'll do my best to help."

	msgApology = "Sorry — I don't have a good answer for that right now. Let me connect you with a human instead."
)

const (
	optClient = "I'm a client"
	optExpert = "I'm an expert"

	optFinding   = "Finding the right expert"
	optDocuments = "Documents and access requests"
	optRatings   = "Ratings and reviews"
	optTechnical = "I have a technical problem"
	optOther     = "Something else"

	optCredits    = "Credits and billing"
	optApproaches = "Approaching clients"

	optNoResponse    = "A client never responded after my approach"
	optTopUp         = "Buying or topping up credits"
	optCreditsOther  = "Something else about credits"
	optHowApproaches = "How do approaches work?"
	optApprOther     = "Something else about approaches"

	optYes   = "Yes, that solved it"
	optMore  = "I have more questions"
	optHuman = "I'd like to talk to a human"

	optDone        = "That's all, thanks"
	optRequestCall = "Request a call anyway"

	optCallNow  = "Call me now"
	optSchedule = "Schedule a call"
	optEmail    = "Email me"

	optStartOver = "Start over"
)

// responderPreamble is the fixed domain context prepended to the transcript
// when a turn is routed to the free-text responder.
const responderPreamble = "You are the support assistant of Wisio, a marketplace where clients post requests " +
	"and service experts spend credits to approach them. Clients upload documents, approve access requests " +
	"and rate experts; experts buy credits and approach client requests. Answer the user's last message " +
	"briefly and concretely. If the question is about a specific account, refunds or payments, say that a " +
	"human colleague will take over. The conversation so far:"
